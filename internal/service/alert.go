package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/flipscout/flipscout/internal/core"
	"github.com/flipscout/flipscout/internal/data"
	"github.com/flipscout/flipscout/internal/domain/model"
	"github.com/flipscout/flipscout/internal/util"
)

// AlertConfig groups the dispatcher's tunables.
type AlertConfig struct {
	// SuppressionWindow silences repeat alerts for the same product.
	SuppressionWindow time.Duration
	// DigestSize caps how many opportunities a digest includes.
	DigestSize int
}

// DefaultAlertConfig returns the stock 24h window / 10-entry digest.
func DefaultAlertConfig() AlertConfig {
	return AlertConfig{
		SuppressionWindow: 24 * time.Hour,
		DigestSize:        10,
	}
}

// AlertServiceOptions groups dependencies for AlertService.
type AlertServiceOptions struct {
	Records      core.AlertRecordRepository // Required: durable dedup log
	Transport    core.AlertTransport        // Required: delivery channel
	Cache        core.SuppressionCache      // Optional: dedup fast path
	Config       AlertConfig
	TimeProvider data.TimeProvider // Optional: defaults to real time
	Logger       *slog.Logger      // Optional: structured logger
}

// AlertService turns profitable opportunities into notifications, deduping
// per product: once an alert for a product has been sent, the product stays
// silent for the suppression window no matter which listing fired.
type AlertService struct {
	records      core.AlertRecordRepository
	transport    core.AlertTransport
	cache        core.SuppressionCache
	cfg          AlertConfig
	timeProvider data.TimeProvider
	logger       *slog.Logger
}

// NewAlertService constructs a new AlertService.
func NewAlertService(opts AlertServiceOptions) *AlertService {
	if opts.Records == nil {
		panic("AlertRecordRepository is required")
	}
	if opts.Transport == nil {
		panic("AlertTransport is required")
	}
	if opts.TimeProvider == nil {
		opts.TimeProvider = &data.RealTimeProvider{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cfg := opts.Config
	if cfg.SuppressionWindow <= 0 {
		cfg.SuppressionWindow = DefaultAlertConfig().SuppressionWindow
	}
	if cfg.DigestSize <= 0 {
		cfg.DigestSize = DefaultAlertConfig().DigestSize
	}

	return &AlertService{
		records:      opts.Records,
		transport:    opts.Transport,
		cache:        opts.Cache,
		cfg:          cfg,
		timeProvider: opts.TimeProvider,
		logger:       opts.Logger.With("component", "alert_service"),
	}
}

// NotifyOpportunity sends a single-opportunity alert unless the product is
// suppressed. Returns whether a notification went out.
func (s *AlertService) NotifyOpportunity(ctx context.Context, opp *model.Opportunity) (bool, error) {
	if opp == nil || opp.Product == nil || opp.Listing == nil {
		return false, fmt.Errorf("opportunity with product and listing is required")
	}
	if !opp.Verdict.IsProfitable {
		return false, nil
	}

	suppressed, err := s.isSuppressed(ctx, opp.Product.ID)
	if err != nil {
		return false, err
	}
	if suppressed {
		s.logger.DebugContext(ctx, "alert suppressed", "product_id", opp.Product.ID)
		return false, nil
	}

	msg := s.formatOpportunity(opp)
	if sendErr := s.transport.Send(ctx, msg); sendErr != nil {
		return false, fmt.Errorf("send alert: %w", sendErr)
	}

	// Recording happens after the send succeeded: a failed delivery must not
	// start the suppression window.
	if err := s.recordSent(ctx, opp.Product.ID, model.AlertKindOpportunity); err != nil {
		return true, err
	}

	s.logger.InfoContext(ctx, "opportunity alert sent",
		"product_id", opp.Product.ID,
		"listing_id", opp.Listing.ID,
		"profit", opp.Verdict.Profit,
	)
	return true, nil
}

// SendDigest sends one notification covering the top profitable
// opportunities, skipping suppressed products. Returns how many entries the
// digest carried; zero means nothing was sent.
func (s *AlertService) SendDigest(ctx context.Context, opps []*model.Opportunity) (int, error) {
	var eligible []*model.Opportunity
	for _, opp := range opps {
		if opp == nil || opp.Product == nil || opp.Listing == nil || !opp.Verdict.IsProfitable {
			continue
		}
		suppressed, err := s.isSuppressed(ctx, opp.Product.ID)
		if err != nil {
			return 0, err
		}
		if !suppressed {
			eligible = append(eligible, opp)
		}
	}
	if len(eligible) == 0 {
		return 0, nil
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Verdict.Profit > eligible[j].Verdict.Profit
	})
	if len(eligible) > s.cfg.DigestSize {
		eligible = eligible[:s.cfg.DigestSize]
	}

	if err := s.transport.Send(ctx, s.formatDigest(eligible)); err != nil {
		return 0, fmt.Errorf("send digest: %w", err)
	}

	for _, opp := range eligible {
		if err := s.recordSent(ctx, opp.Product.ID, model.AlertKindDigest); err != nil {
			return len(eligible), err
		}
	}

	s.logger.InfoContext(ctx, "digest sent", "entries", len(eligible))
	return len(eligible), nil
}

// isSuppressed checks the fast cache first, then the durable record log.
// A durable hit warms the cache so the next check stays local.
func (s *AlertService) isSuppressed(ctx context.Context, productID string) (bool, error) {
	if s.cache != nil {
		seen, err := s.cache.Seen(ctx, productID)
		if err != nil {
			s.logger.WarnContext(ctx, "suppression cache check failed", "product_id", productID, "error", err)
		} else if seen {
			return true, nil
		}
	}

	since := s.timeProvider.Now().UTC().Add(-s.cfg.SuppressionWindow)
	exists, err := s.records.ExistsSince(ctx, productID, since)
	if err != nil {
		return false, fmt.Errorf("check alert records: %w", err)
	}
	if exists && s.cache != nil {
		if markErr := s.cache.MarkSeen(ctx, productID, s.cfg.SuppressionWindow); markErr != nil {
			s.logger.WarnContext(ctx, "suppression cache warm failed", "product_id", productID, "error", markErr)
		}
	}
	return exists, nil
}

func (s *AlertService) recordSent(ctx context.Context, productID string, kind model.AlertKind) error {
	if _, err := s.records.Create(ctx, productID, kind); err != nil {
		return fmt.Errorf("record alert: %w", err)
	}
	if s.cache != nil {
		if err := s.cache.MarkSeen(ctx, productID, s.cfg.SuppressionWindow); err != nil {
			s.logger.WarnContext(ctx, "suppression cache mark failed", "product_id", productID, "error", err)
		}
	}
	return nil
}

func (s *AlertService) formatOpportunity(opp *model.Opportunity) core.AlertMessage {
	subject := "Profitable: " + titleOrID(opp.Product)

	var body strings.Builder
	writeOpportunityLines(&body, opp)
	return core.AlertMessage{Subject: subject, Body: body.String()}
}

func (s *AlertService) formatDigest(opps []*model.Opportunity) core.AlertMessage {
	subject := fmt.Sprintf("Arbitrage digest: %d opportunities", len(opps))

	var body strings.Builder
	for i, opp := range opps {
		fmt.Fprintf(&body, "%d. %s\n", i+1, titleOrID(opp.Product))
		writeOpportunityLines(&body, opp)
		body.WriteByte('\n')
	}
	return core.AlertMessage{Subject: subject, Body: body.String()}
}

func writeOpportunityLines(body *strings.Builder, opp *model.Opportunity) {
	fmt.Fprintf(body, "Buy: %s at %s\n", opp.Listing.ListingURL, util.FormatMoney(opp.Listing.Price))
	if opp.Product.MarketplacePrice != nil {
		fmt.Fprintf(body, "Sell: %s at %s\n", opp.Product.MarketplaceID, util.FormatMoney(*opp.Product.MarketplacePrice))
	}
	fmt.Fprintf(body, "Profit: %s (%s margin)\n",
		util.FormatMoney(opp.Verdict.Profit),
		util.FormatPercent(opp.Verdict.MarginPercent),
	)
}

func titleOrID(p *model.Product) string {
	if strings.TrimSpace(p.Title) != "" {
		return p.Title
	}
	return p.MarketplaceID
}
