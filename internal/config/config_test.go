package config

import (
	"strings"
	"testing"
)

func validConfig() RunConfig {
	c := DefaultRunConfig()
	c.EnvID = "CartPole-v0"
	c.Name = "test run"
	c.NLabels = 100
	return c
}

func TestValidateAcceptsDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejectsUnknownPredictor(t *testing.T) {
	c := validConfig()
	c.Predictor = "bogus"
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error for unknown predictor kind")
	}
	if !strings.Contains(err.Error(), "bogus") {
		t.Fatalf("error should name the bad kind: %v", err)
	}
}

func TestValidateRejectsUnknownAgent(t *testing.T) {
	c := validConfig()
	c.Agent = "ga3c"
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for unknown agent kind")
	}
}

func TestValidateRequiresLabelsForPreferencePredictors(t *testing.T) {
	c := validConfig()
	c.NLabels = 0
	c.PretrainLabels = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error when neither budget nor pretrain labels given")
	}
	c.PretrainLabels = 25
	if err := c.Validate(); err != nil {
		t.Fatalf("pretrain labels alone should select the constant schedule: %v", err)
	}
}

func TestEffectivePretrainLabelsQuarterDefault(t *testing.T) {
	c := validConfig()
	c.NLabels = 400
	c.PretrainLabels = 0
	if got := c.EffectivePretrainLabels(); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
	c.PretrainLabels = 37
	if got := c.EffectivePretrainLabels(); got != 37 {
		t.Fatalf("explicit value wins, got %d", got)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"My Experiment!": "my-experiment",
		"a_b c":          "a-b-c",
		"--x--":          "x",
	}
	for in, want := range cases {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
