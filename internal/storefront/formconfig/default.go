package formconfig

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Default is the built-in configuration used when the merchant config cannot
// be fetched: an embedded form without fields.
func Default() *Response {
	resp, err := Parse(defaultYAML)
	if err != nil {
		// default.yaml ships with the binary; a parse failure is a build defect.
		panic(fmt.Sprintf("formconfig: built-in default: %v", err))
	}
	return resp
}

// LoadFile reads an operator supplied fallback config (YAML or JSON).
func LoadFile(path string) (*Response, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form config %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a config document. YAML is a superset of JSON so both are
// accepted; the YAML tree is re-encoded to reuse the JSON field decoding.
func Parse(raw []byte) (*Response, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("formconfig: parse: %w", err)
	}
	asJSON, err := json.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("formconfig: re-encode: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(asJSON, &resp); err != nil {
		return nil, fmt.Errorf("formconfig: decode: %w", err)
	}
	resp.Form.FormType = resp.Form.FormType.Normalize()
	if resp.Form.Fields == nil {
		resp.Form.Fields = Fields{}
	}
	return &resp, nil
}
