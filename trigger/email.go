package trigger

import (
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	imap "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"

	"github.com/CurvatureX/trigger-engine/common/logger"
	"github.com/CurvatureX/trigger-engine/common/models"
	"github.com/CurvatureX/trigger-engine/dispatch"
)

// attachmentInlineLimit is the boundary the platform uses to decide whether
// an attachment is embedded in trigger_data (base64) or recorded as
// metadata only: at 1 MiB exactly it is still embedded, one byte over it
// is not.
const attachmentInlineLimit = 1 << 20 // 1 MiB

// EmailTrigger polls an IMAP mailbox for unseen messages on an interval,
// firing the workflow for each message that matches its configured filter.
type EmailTrigger struct {
	base

	server               string
	user                 string
	password             string
	folder               string
	markAsRead           bool
	emailFilter          string
	attachmentProcessing string // "include" (default) or "exclude"
	checkInterval        time.Duration

	stop   chan struct{}
	done   chan struct{}
	stopMu sync.Mutex
	stopped bool
}

// NewEmailTrigger creates an email trigger. server/user/password come from
// service-level email configuration; folder, mark_as_read, email_filter,
// and check_interval are per-trigger overrides.
func NewEmailTrigger(def *models.TriggerDefinition, dispatcher *dispatch.Dispatcher, server, user, password string, defaultInterval time.Duration, log *logger.Logger) (*EmailTrigger, error) {
	if user == "" || password == "" {
		return nil, fmt.Errorf("email trigger %s: IMAP credentials not configured", def.TriggerID)
	}

	folder := "INBOX"
	if v, ok := def.Config["folder"].(string); ok && v != "" {
		folder = v
	}

	markAsRead := true
	if v, ok := def.Config["mark_as_read"].(bool); ok {
		markAsRead = v
	}

	emailFilter, _ := def.Config["email_filter"].(string)

	attachmentProcessing := "include"
	if v, ok := def.Config["attachment_processing"].(string); ok && v != "" {
		attachmentProcessing = v
	}

	interval := defaultInterval
	if v, ok := def.Config["check_interval"].(float64); ok && v > 0 {
		interval = time.Duration(v) * time.Second
	}

	return &EmailTrigger{
		base:                 newBase(def, dispatcher, log),
		server:               server,
		user:                 user,
		password:             password,
		folder:               folder,
		markAsRead:           markAsRead,
		emailFilter:          emailFilter,
		attachmentProcessing: attachmentProcessing,
		checkInterval:        interval,
	}, nil
}

// Type implements Trigger.
func (e *EmailTrigger) Type() string { return "email" }

// WorkflowID implements Trigger.
func (e *EmailTrigger) WorkflowID() uuid.UUID { return e.base.workflowID }

// Start tests the IMAP connection and begins the polling loop.
func (e *EmailTrigger) Start() error {
	if !e.enabled {
		e.log.Info("email trigger disabled, not starting", "workflow_id", e.workflowID)
		return nil
	}
	if err := e.testConnection(); err != nil {
		return fmt.Errorf("email trigger %s: imap connection test failed: %w", e.triggerID, err)
	}

	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.monitorLoop()

	e.log.Info("email trigger started", "workflow_id", e.workflowID, "folder", e.folder)
	return nil
}

// Stop ends the polling loop and waits for it to exit.
func (e *EmailTrigger) Stop() error {
	e.stopMu.Lock()
	if e.stopped || e.stop == nil {
		e.stopMu.Unlock()
		return nil
	}
	e.stopped = true
	e.stopMu.Unlock()

	close(e.stop)
	<-e.done
	e.log.Info("email trigger stopped", "workflow_id", e.workflowID)
	return nil
}

func (e *EmailTrigger) testConnection() error {
	client, err := e.dial()
	if err != nil {
		return err
	}
	defer client.Logout()
	defer client.Close()
	return nil
}

func (e *EmailTrigger) dial() (*imapclient.Client, error) {
	client, err := imapclient.DialTLS(e.server+":993", nil)
	if err != nil {
		return nil, fmt.Errorf("dial imap: %w", err)
	}
	if err := client.Login(e.user, e.password).Wait(); err != nil {
		client.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return client, nil
}

func (e *EmailTrigger) monitorLoop() {
	defer close(e.done)
	for {
		if err := e.checkNewEmails(); err != nil {
			e.log.Error("error checking email", "workflow_id", e.workflowID, "error", err)
		}
		select {
		case <-e.stop:
			return
		case <-time.After(e.checkInterval):
		}
	}
}

func (e *EmailTrigger) checkNewEmails() error {
	client, err := e.dial()
	if err != nil {
		return err
	}
	defer client.Logout()
	defer client.Close()

	if _, err := client.Select(e.folder, nil).Wait(); err != nil {
		return fmt.Errorf("select folder %s: %w", e.folder, err)
	}

	searchData, err := client.Search(&imap.SearchCriteria{
		NotFlag: []imap.Flag{imap.FlagSeen},
	}, nil).Wait()
	if err != nil {
		return fmt.Errorf("search unseen: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}
	e.log.Info("found new emails", "workflow_id", e.workflowID, "count", len(uids))

	for _, uid := range uids {
		if err := e.processMessage(client, uid); err != nil {
			e.log.Error("error processing email", "workflow_id", e.workflowID, "uid", uid, "error", err)
		}
	}
	return nil
}

func (e *EmailTrigger) processMessage(client *imapclient.Client, uid imap.UID) error {
	seqSet := imap.UIDSetNum(uid)
	fetchOptions := &imap.FetchOptions{
		Envelope: true,
		BodySection: []*imap.FetchItemBodySection{{}},
	}

	messages, err := client.Fetch(seqSet, fetchOptions).Collect()
	if err != nil {
		return fmt.Errorf("fetch uid %d: %w", uid, err)
	}
	if len(messages) == 0 {
		return nil
	}
	msg := messages[0]

	info, err := extractEmailInfo(msg)
	if err != nil {
		return fmt.Errorf("parse message: %w", err)
	}

	if !e.matchesFilter(info) {
		return nil
	}

	triggerData := map[string]interface{}{
		"trigger_type": "email",
		"email_id":     fmt.Sprintf("%d", uid),
		"subject":      info.subject,
		"sender":       info.sender,
		"recipient":    info.recipient,
		"date":         info.date,
		"body_text":    info.bodyText,
		"body_html":    info.bodyHTML,
		"triggered_at": time.Now().UTC().Format(time.RFC3339),
		"execution_id": uuid.New().String(),
	}
	if e.attachmentProcessing != "exclude" && len(info.attachments) > 0 {
		triggerData["attachments"] = attachmentsToTriggerData(info.attachments)
	}

	e.fire("email", triggerData)

	if e.markAsRead {
		storeFlags := &imap.StoreFlags{
			Op:     imap.StoreFlagsAdd,
			Silent: true,
			Flags:  []imap.Flag{imap.FlagSeen},
		}
		if err := client.Store(seqSet, storeFlags, nil).Close(); err != nil {
			e.log.Warn("failed to mark email as read", "workflow_id", e.workflowID, "uid", uid, "error", err)
		}
	}
	return nil
}

type emailInfo struct {
	subject     string
	sender      string
	recipient   string
	date        string
	bodyText    string
	bodyHTML    string
	attachments []emailAttachment
}

// emailAttachment carries either the attachment's content (size <=
// attachmentInlineLimit) or just its metadata (size above that), per §4.1.5.
type emailAttachment struct {
	filename    string
	contentType string
	size        int
	content     []byte // nil when size exceeds attachmentInlineLimit
}

func extractEmailInfo(msg *imapclient.FetchMessageBuffer) (emailInfo, error) {
	info := emailInfo{}
	if msg.Envelope != nil {
		info.subject = msg.Envelope.Subject
		if len(msg.Envelope.From) > 0 {
			info.sender = msg.Envelope.From[0].Addr()
		}
		if len(msg.Envelope.To) > 0 {
			info.recipient = msg.Envelope.To[0].Addr()
		}
		info.date = msg.Envelope.Date.UTC().Format(time.RFC3339)
	}

	for _, bs := range msg.BodySection {
		r := mail.NewReader(nopSeekCloserReader(bs.Bytes))
		for {
			part, err := r.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				break
			}
			switch h := part.Header.(type) {
			case *mail.InlineHeader:
				contentType, _, _ := h.ContentType()
				body, _ := io.ReadAll(part.Body)
				switch contentType {
				case "text/plain":
					info.bodyText += string(body)
				case "text/html":
					info.bodyHTML += string(body)
				}
			case *mail.AttachmentHeader:
				filename, _ := h.Filename()
				contentType, _, _ := h.ContentType()
				body, _ := io.ReadAll(part.Body)

				attachment := emailAttachment{
					filename:    filename,
					contentType: contentType,
					size:        len(body),
				}
				if len(body) <= attachmentInlineLimit {
					attachment.content = body
				}
				info.attachments = append(info.attachments, attachment)
			}
		}
	}

	return info, nil
}

// attachmentsToTriggerData converts the parsed attachments into the
// trigger_data shape: content base64-encoded when present, metadata-only
// (no "content" key) when the attachment exceeded the inline limit.
func attachmentsToTriggerData(attachments []emailAttachment) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(attachments))
	for _, a := range attachments {
		entry := map[string]interface{}{
			"filename":     a.filename,
			"content_type": a.contentType,
			"size":         a.size,
		}
		if a.content != nil {
			entry["content"] = base64.StdEncoding.EncodeToString(a.content)
		}
		out = append(out, entry)
	}
	return out
}

func (e *EmailTrigger) matchesFilter(info emailInfo) bool {
	if e.emailFilter == "" {
		return true
	}

	parts := strings.SplitN(e.emailFilter, ":", 2)
	if len(parts) != 2 {
		needle := strings.ToLower(e.emailFilter)
		haystack := strings.ToLower(info.subject + " " + info.sender + " " + info.bodyText)
		return strings.Contains(haystack, needle)
	}

	filterType := strings.ToLower(strings.TrimSpace(parts[0]))
	filterValue := strings.ToLower(strings.TrimSpace(parts[1]))

	switch filterType {
	case "from":
		return strings.Contains(strings.ToLower(info.sender), filterValue)
	case "subject":
		return strings.Contains(strings.ToLower(info.subject), filterValue)
	case "to":
		return strings.Contains(strings.ToLower(info.recipient), filterValue)
	case "body":
		body := strings.ToLower(info.bodyText + " " + info.bodyHTML)
		return strings.Contains(body, filterValue)
	default:
		return strings.Contains(strings.ToLower(info.subject), filterValue)
	}
}

func nopSeekCloserReader(b []byte) io.Reader {
	return strings.NewReader(string(b))
}
