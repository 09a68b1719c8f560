package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/onetoweb/mybusiness-go/client"
)

// Parses "key=value" arguments in to an ordered query. Surrounding quotes on values are stripped. Repeated keys are kept in order.
func parseQueryArgs(args []string) (client.Query, error) {
	var q client.Query
	for _, param := range args {
		split := strings.SplitN(param, "=", 2)
		if len(split) != 2 || split[0] == "" {
			return nil, fmt.Errorf("parameters must be split with an equals sign: %q", param)
		}
		value := split[1]
		if strings.HasPrefix(value, "\"") || strings.HasPrefix(value, "'") {
			value = strings.Trim(value, "\"'")
		}
		q = q.Add(split[0], value)
	}
	return q, nil
}

// Parses a JSON object request body. Empty (or whitespace) input means no body.
func parseBody(raw []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("request body must be a JSON object: %w", err)
	}
	return body, nil
}

func printJSON(w io.Writer, v any) error {
	if v == nil {
		return nil
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
