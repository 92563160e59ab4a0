package config

import (
	"encoding/json"
	"testing"

	"go.viam.com/test"
)

func TestSchema(t *testing.T) {
	data, err := Schema()
	test.That(t, err, test.ShouldBeNil)

	var schema struct {
		Type       string                     `json:"type"`
		Required   []string                   `json:"required"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	test.That(t, json.Unmarshal(data, &schema), test.ShouldBeNil)
	test.That(t, schema.Type, test.ShouldEqual, "object")
	test.That(t, schema.Required, test.ShouldBeEmpty)
	for _, key := range []string{"controller", "loop", "sim", "network", "params", "telemetry", "log", "log_file", "debug"} {
		test.That(t, schema.Properties, test.ShouldContainKey, key)
	}
	test.That(t, schema.Properties, test.ShouldNotContainKey, "ConfigFilePath")
}
