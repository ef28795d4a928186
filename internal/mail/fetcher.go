package mail

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	imap "github.com/BrianLeishman/go-imap"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-cli/internal/apperr"
	"github.com/sells-group/prospect-cli/internal/config"
	"github.com/sells-group/prospect-cli/internal/model"
)

// Fetcher returns unread messages from the reply inbox.
type Fetcher interface {
	FetchUnread(ctx context.Context) ([]model.InboundMessage, error)
}

// mailbox is the subset of *imap.Dialer the fetcher uses.
type mailbox interface {
	SelectFolder(folder string) error
	GetUIDs(search string) ([]int, error)
	GetEmails(uids ...int) (map[int]*imap.Email, error)
	Close() error
}

type dialFunc func(username, password, host string, port int) (mailbox, error)

func dialIMAP(username, password, host string, port int) (mailbox, error) {
	d, err := imap.New(username, password, host, port)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// messageIDSpace namespaces the derived ids of messages without a Message-ID header.
var messageIDSpace = uuid.MustParse("5b0e6f3c-4c2a-4f55-9d0e-8a6b7f1c2d3e")

// IMAPFetcher reads UNSEEN mail from one folder over IMAPS.
type IMAPFetcher struct {
	cfg  config.IMAPConfig
	dial dialFunc
	now  func() time.Time
}

// NewIMAPFetcher creates a fetcher for the configured inbox.
func NewIMAPFetcher(cfg config.IMAPConfig) (*IMAPFetcher, error) {
	if cfg.Host == "" {
		return nil, apperr.Validation("mail.new_imap", "imap.host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPFetcher{cfg: cfg, dial: dialIMAP, now: time.Now}, nil
}

// FetchUnread connects, searches the folder for unseen messages and returns
// them oldest first. A connection or protocol failure is KindProviderUnavailable.
func (f *IMAPFetcher) FetchUnread(ctx context.Context) ([]model.InboundMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	box, err := f.dial(f.cfg.Username, f.cfg.Password, f.cfg.Host, f.cfg.Port)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "mail.imap_dial", err)
	}
	defer func() {
		if cerr := box.Close(); cerr != nil {
			zap.L().Debug("mail: imap close failed", zap.Error(cerr))
		}
	}()

	if err := box.SelectFolder(f.cfg.Folder); err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "mail.imap_select", err)
	}

	uids, err := box.GetUIDs(f.searchCriteria())
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "mail.imap_search", err)
	}
	if len(uids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	emails, err := box.GetEmails(uids...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindProviderUnavailable, "mail.imap_fetch", err)
	}

	sort.Ints(uids)
	out := make([]model.InboundMessage, 0, len(emails))
	for _, uid := range uids {
		e, ok := emails[uid]
		if !ok || e == nil {
			continue
		}
		msg, ok := toInbound(f.cfg.Folder, uid, e)
		if !ok {
			continue
		}
		out = append(out, msg)
	}

	zap.L().Debug("mail: fetched unread",
		zap.String("folder", f.cfg.Folder),
		zap.Int("uids", len(uids)),
		zap.Int("messages", len(out)),
	)
	return out, nil
}

func (f *IMAPFetcher) searchCriteria() string {
	if f.cfg.LookbackDays <= 0 {
		return "UNSEEN"
	}
	since := f.now().AddDate(0, 0, -f.cfg.LookbackDays)
	return "UNSEEN SINCE " + since.Format("02-Jan-2006")
}

func toInbound(folder string, uid int, e *imap.Email) (model.InboundMessage, bool) {
	from := firstAddress(e.From)
	if from == "" {
		return model.InboundMessage{}, false
	}

	body := e.Text
	if strings.TrimSpace(body) == "" {
		body = HTMLToText(e.HTML)
	}

	id := strings.TrimSpace(e.MessageID)
	if id == "" {
		seed := fmt.Sprintf("%s|%d|%s|%s|%s", folder, uid, from, e.Subject, e.Sent.UTC().Format(time.RFC3339))
		id = "<" + uuid.NewSHA1(messageIDSpace, []byte(seed)).String() + "@prospect.local>"
	}

	return model.InboundMessage{
		MessageID: id,
		From:      strings.ToLower(from),
		Subject:   e.Subject,
		Body:      ReplyText(body),
	}, true
}

// firstAddress picks the lexically smallest address so the choice is stable
// across map iteration orders.
func firstAddress(addrs imap.EmailAddresses) string {
	var best string
	for addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if best == "" || addr < best {
			best = addr
		}
	}
	return best
}
