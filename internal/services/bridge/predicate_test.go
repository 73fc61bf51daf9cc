package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/myworkflows/chat-service/internal/services/bridge"
)

func TestDefaultToolPredicate(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"What does this workflow do?", true},
		{"Which NODES are disabled?", true},
		{"my Webhook returns 404", true},
		{"check the credentials please", true},
		{"how do I change the settings", true},
		{"hello!", false},
		{"what's the capital of France", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, bridge.DefaultToolPredicate(tt.text))
		})
	}
}

func TestKeywordPredicate_Custom(t *testing.T) {
	p := bridge.KeywordPredicate("deploy")

	assert.True(t, p("Deployment failed"))
	assert.False(t, p("redeploy"))
	assert.False(t, bridge.KeywordPredicate()("anything"))
}
