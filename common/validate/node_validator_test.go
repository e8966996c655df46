package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNodeIDAcceptsWellFormedID(t *testing.T) {
	v := NewNodeValidator()
	assert.NoError(t, v.ValidateNodeID("fetch_invoice-1"))
}

func TestValidateNodeIDRejectsTooShort(t *testing.T) {
	v := NewNodeValidator()
	assert.Error(t, v.ValidateNodeID("ab"))
}

func TestValidateNodeIDRejectsLeadingDigit(t *testing.T) {
	v := NewNodeValidator()
	assert.Error(t, v.ValidateNodeID("1abc"))
}

func TestValidateNodeIDRejectsReservedName(t *testing.T) {
	v := NewNodeValidator()
	assert.Error(t, v.ValidateNodeID("__start__"))
	assert.Error(t, v.ValidateNodeID("__end__"))
	assert.Error(t, v.ValidateNodeID("__trigger__"))
}

func TestValidateNodeIDsRejectsDuplicates(t *testing.T) {
	v := NewNodeValidator()
	err := v.ValidateNodeIDs([]string{"fetch_invoice", "send_email", "fetch_invoice"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate node id")
}

func TestValidateNodeIDsIsIdempotent(t *testing.T) {
	v := NewNodeValidator()
	ids := []string{"fetch_invoice", "send_email", "log_result"}
	assert.NoError(t, v.ValidateNodeIDs(ids))
	assert.NoError(t, v.ValidateNodeIDs(ids))
}

func TestValidateConnectionsRejectsUnknownSource(t *testing.T) {
	v := NewNodeValidator()
	err := v.ValidateConnections([]string{"a", "b"}, map[string][]ConnectionRef{
		"ghost": {{TargetNodeID: "a", ConnectionType: "main"}},
	})
	assert.Error(t, err)
}

func TestValidateConnectionsRejectsUnknownTarget(t *testing.T) {
	v := NewNodeValidator()
	err := v.ValidateConnections([]string{"a", "b"}, map[string][]ConnectionRef{
		"a": {{TargetNodeID: "ghost", ConnectionType: "main"}},
	})
	assert.Error(t, err)
}

func TestValidateConnectionsRejectsMissingConnectionType(t *testing.T) {
	v := NewNodeValidator()
	err := v.ValidateConnections([]string{"a", "b"}, map[string][]ConnectionRef{
		"a": {{TargetNodeID: "b"}},
	})
	assert.Error(t, err)
}

func TestValidateConnectionsAcceptsWellFormedGraph(t *testing.T) {
	v := NewNodeValidator()
	err := v.ValidateConnections([]string{"a", "b", "c"}, map[string][]ConnectionRef{
		"a": {{TargetNodeID: "b", ConnectionType: "main"}},
		"b": {{TargetNodeID: "c", ConnectionType: "main"}},
	})
	assert.NoError(t, err)
}
