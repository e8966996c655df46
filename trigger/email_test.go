package trigger

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
)

func testTriggerDefinition(config map[string]interface{}) *models.TriggerDefinition {
	if config == nil {
		config = map[string]interface{}{}
	}
	return &models.TriggerDefinition{
		TriggerID:  uuid.New(),
		WorkflowID: uuid.New(),
		Enabled:    true,
		Config:     config,
	}
}

func TestAttachmentsToTriggerDataEmbedsAtExactlyOneMiB(t *testing.T) {
	content := strings.Repeat("a", attachmentInlineLimit)
	attachments := []emailAttachment{
		{filename: "report.txt", contentType: "text/plain", size: len(content), content: []byte(content)},
	}

	out := attachmentsToTriggerData(attachments)
	require.Len(t, out, 1)
	assert.Equal(t, attachmentInlineLimit, out[0]["size"])
	encoded, ok := out[0]["content"].(string)
	require.True(t, ok, "1 MiB attachment must be embedded")
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.Equal(t, content, string(decoded))
}

func TestAttachmentsToTriggerDataOmitsContentOneByteOverLimit(t *testing.T) {
	// extractEmailInfo never populates .content past the limit; simulate
	// that here directly rather than allocating a MiB+1 byte slice twice.
	attachments := []emailAttachment{
		{filename: "huge.bin", contentType: "application/octet-stream", size: attachmentInlineLimit + 1, content: nil},
	}

	out := attachmentsToTriggerData(attachments)
	require.Len(t, out, 1)
	assert.Equal(t, attachmentInlineLimit+1, out[0]["size"])
	_, hasContent := out[0]["content"]
	assert.False(t, hasContent, "attachment over the limit must be metadata-only")
}

func TestEmailTriggerExcludeAttachmentProcessingDropsAttachments(t *testing.T) {
	def := testTriggerDefinition(map[string]interface{}{
		"attachment_processing": "exclude",
	})
	et, err := NewEmailTrigger(def, nil, "imap.example.com", "user", "pass", 0, logger.New("error", "text"))
	require.NoError(t, err)
	assert.Equal(t, "exclude", et.attachmentProcessing)
}

func TestEmailTriggerDefaultsAttachmentProcessingToInclude(t *testing.T) {
	def := testTriggerDefinition(nil)
	et, err := NewEmailTrigger(def, nil, "imap.example.com", "user", "pass", 0, logger.New("error", "text"))
	require.NoError(t, err)
	assert.Equal(t, "include", et.attachmentProcessing)
}
