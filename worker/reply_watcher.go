package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"

	"reachflow/engine"
	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"
)

// ReplyWatcher polls each tenant's IMAP inbox for replies to sequence emails.
// It matches the In-Reply-To / References headers of unseen messages against
// the message IDs we stamped on outgoing sends and feeds hits to the engine,
// which handles reply side effects (stop-on-reply, analytics) from there.
type ReplyWatcher struct {
	store    store.Store
	engine   *engine.Engine
	logger   *logrus.Entry
	Interval time.Duration
	// FetchLimit caps how many unseen messages are examined per mailbox per
	// poll, so a flooded inbox cannot stall the loop.
	FetchLimit int
	// CredentialKey opens the tenant's stored IMAP password
	CredentialKey string
}

func NewReplyWatcher(st store.Store, eng *engine.Engine, logger *logrus.Logger) *ReplyWatcher {
	return &ReplyWatcher{
		store:      st,
		engine:     eng,
		logger:     logger.WithField("worker", "reply_watcher"),
		Interval:   2 * time.Minute,
		FetchLimit: 50,
	}
}

// Start runs the polling loop until the context is cancelled
func (w *ReplyWatcher) Start(ctx context.Context) {
	w.logger.WithField("interval", w.Interval.String()).Info("Starting reply watcher")

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Stopping reply watcher")
			return
		case <-ticker.C:
			w.pollAll(ctx)
		}
	}
}

func (w *ReplyWatcher) pollAll(ctx context.Context) {
	tenants, err := w.store.ListTenants()
	if err != nil {
		w.logger.WithError(err).Error("Failed to list tenants")
		return
	}

	for i := range tenants {
		tenant := &tenants[i]
		if !tenant.HasIMAP() {
			continue
		}
		utils.DecryptTenantSecrets(w.CredentialKey, tenant)
		if err := w.pollTenant(ctx, tenant); err != nil {
			w.logger.WithError(err).WithField("tenant_id", tenant.ID).Error("Failed to poll inbox")
		}
	}
}

func (w *ReplyWatcher) pollTenant(ctx context.Context, tenant *models.Tenant) error {
	addr := fmt.Sprintf("%s:%d", tenant.IMAPHost, tenant.IMAPPort)
	c, err := client.DialTLS(addr, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer c.Logout()

	if err := c.Login(tenant.IMAPUsername, tenant.IMAPPassword); err != nil {
		return fmt.Errorf("IMAP login failed: %w", err)
	}

	mailbox := tenant.IMAPMailbox
	if mailbox == "" {
		mailbox = "INBOX"
	}
	if _, err := c.Select(mailbox, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if w.FetchLimit > 0 && len(ids) > w.FetchLimit {
		ids = ids[:w.FetchLimit]
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	// Plain (non-peek) fetch marks the message seen, so the next poll's
	// unseen search does not hand it back.
	section := &imap.BodySectionName{}
	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, section.FetchItem()}, messages)
	}()

	var matched int
	for msg := range messages {
		if msg.Envelope == nil {
			continue
		}
		content := extractTextContent(msg.GetBody(section))
		for _, ref := range referencedMessageIDs(msg.Envelope) {
			handled, err := w.handleReply(ctx, tenant.ID, ref, content)
			if err != nil {
				w.logger.WithError(err).WithFields(logrus.Fields{
					"tenant_id":  tenant.ID,
					"message_id": ref,
				}).Error("Failed to record reply")
				continue
			}
			if handled {
				matched++
				break
			}
		}
	}
	if err := <-done; err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if matched > 0 {
		w.logger.WithFields(logrus.Fields{
			"tenant_id": tenant.ID,
			"replies":   matched,
		}).Info("Recorded inbox replies")
	}
	return nil
}

// handleReply reports whether the referenced message ID belonged to one of
// this tenant's sends. Unknown IDs are ordinary inbox traffic, not errors.
func (w *ReplyWatcher) handleReply(ctx context.Context, tenantID uint, messageID, content string) (bool, error) {
	err := w.engine.HandleReplyByMessageID(ctx, tenantID, messageID, content)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, engine.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// extractTextContent pulls the first text/plain part of the raw message,
// falling back to text/html when that is all the sender attached. Parse
// errors yield an empty string; the reply still counts without its body.
func extractTextContent(literal imap.Literal) string {
	if literal == nil {
		return ""
	}
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}

	var htmlBody string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return ""
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				continue
			}
			if strings.Contains(contentType, "text/plain") {
				return strings.TrimSpace(string(b))
			}
			if strings.Contains(contentType, "text/html") && htmlBody == "" {
				htmlBody = strings.TrimSpace(string(b))
			}
		}
	}
	return htmlBody
}

// referencedMessageIDs extracts candidate message IDs from a reply envelope,
// stripped of their angle brackets
func referencedMessageIDs(env *imap.Envelope) []string {
	var refs []string
	for _, raw := range strings.Fields(env.InReplyTo) {
		if id := strings.Trim(raw, "<>"); id != "" {
			refs = append(refs, id)
		}
	}
	return refs
}
