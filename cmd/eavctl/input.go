package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"registrar/internal/domain/eav"
)

// parseAttributes decodes a JSON object. Numbers stay json.Number so that
// decimal precision reaches the codec untouched.
func parseAttributes(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var attrs map[string]any
	if err := dec.Decode(&attrs); err != nil {
		return nil, fmt.Errorf("attributes must be a JSON object: %w", err)
	}
	if attrs == nil {
		return nil, fmt.Errorf("attributes must be a JSON object")
	}
	return attrs, nil
}

// parseDeclarations reads "name:type[:required]" entries separated by commas.
func parseDeclarations(raw string) ([]eav.AttributeSpec, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var specs []eav.AttributeSpec
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, fmt.Errorf("invalid declaration %q, want name:type[:required]", entry)
		}
		spec := eav.AttributeSpec{Name: parts[0], DataType: eav.DataType(parts[1])}
		if len(parts) == 3 {
			if parts[2] != "required" {
				return nil, fmt.Errorf("invalid declaration %q, want name:type[:required]", entry)
			}
			spec.IsRequired = true
		}
		if err := spec.Validate(); err != nil {
			return nil, err
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func writeOptions(c *cli.Command) ([]eav.WriteOption, error) {
	var opts []eav.WriteOption
	if c.IsSet("key") {
		opts = append(opts, eav.WithNaturalKey(c.String("key")))
	}
	specs, err := parseDeclarations(c.String("declare"))
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		opts = append(opts, eav.WithDeclarations(specs...))
	}
	return opts, nil
}
