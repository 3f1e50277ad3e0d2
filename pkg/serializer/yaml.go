package serializer

import "gopkg.in/yaml.v3"

// YAMLSerializer encodes results as YAML strings.
type YAMLSerializer struct{}

func (YAMLSerializer) Name() string { return NameYAML }

func (YAMLSerializer) Encode(v any) (any, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (YAMLSerializer) Decode(payload any) (any, error) {
	b, err := payloadBytes(payload)
	if err != nil {
		return nil, err
	}
	var v any
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
