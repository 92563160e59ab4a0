package logging

import (
	"testing"

	"go.viam.com/test"
)

func TestValidatePattern(t *testing.T) {
	t.Parallel()

	for pattern, valid := range map[string]bool{
		"impedance.switcher":   true,
		"impedance.*":          true,
		"impedance.*.gains":    true,
		"*.loop":               true,
		"*":                    true,
		"web_server":           true,
		"impedance..switcher":  false,
		"impedance.switcher.":  false,
		".impedance":           false,
		"impedance.**":         false,
		"_.impedance":          false,
		"impedance.-":          false,
		"impedance.switcher/1": false,
	} {
		test.That(t, validatePattern(pattern), test.ShouldEqual, valid)
	}
}

func TestRegistryUpdateConfig(t *testing.T) {
	registry := NewRegistry()
	names := []string{"impedance", "impedance.switcher", "impedance.gains", "control.loop"}
	for _, name := range names {
		registry.Register(name, NewLogger(name))
	}
	test.That(t, registry.Names(), test.ShouldResemble, []string{
		"control.loop", "impedance", "impedance.gains", "impedance.switcher",
	})

	warn, logs := NewObservedTestLogger(t)
	err := registry.UpdateConfig([]LoggerPatternConfig{
		{Pattern: "impedance.*", Level: "debug"},
		{Pattern: "impedance.gains", Level: "error"},
		{Pattern: "bad..pattern", Level: "debug"},
	}, warn)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("failed to validate a pattern").Len(), test.ShouldEqual, 1)

	expect := map[string]Level{
		"impedance":          INFO,
		"impedance.switcher": DEBUG,
		"impedance.gains":    ERROR,
		"control.loop":       INFO,
	}
	for name, level := range expect {
		logger, ok := registry.LoggerNamed(name)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, logger.GetLevel(), test.ShouldEqual, level)
	}

	// Registering later still picks up the configured pattern.
	late := registry.Register("impedance.safety", NewLogger("impedance.safety"))
	test.That(t, late.GetLevel(), test.ShouldEqual, DEBUG)

	err = registry.UpdateConfig([]LoggerPatternConfig{{Pattern: "*", Level: "shout"}}, warn)
	test.That(t, err, test.ShouldNotBeNil)

	test.That(t, registry.UpdateConfig(nil, warn), test.ShouldBeNil)
	logger, _ := registry.LoggerNamed("impedance.switcher")
	test.That(t, logger.GetLevel(), test.ShouldEqual, INFO)
}
