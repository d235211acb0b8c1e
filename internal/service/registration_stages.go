package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/split"

	"golang.org/x/sync/errgroup"
)

// recipientLookupLimit bounds concurrent affiliation lookups for split recipients.
const recipientLookupLimit = 8

// Legacy spellings still sent by older terminals and integrations.
var (
	captureMethodAliases = map[string]string{
		"swiped": domain.CaptureMethodMagstripe,
		"chip":   domain.CaptureMethodEMV,
	}
	providerAliases = map[string]string{
		"redeshop": "rede",
	}
	cardBrandAliases = map[string]string{
		"master":           "mastercard",
		"american express": "amex",
		"americanexpress":  "amex",
	}
)

var (
	validPaymentMethods = map[string]bool{
		domain.PaymentMethodCreditCard: true,
		domain.PaymentMethodDebitCard:  true,
		domain.PaymentMethodBoleto:     true,
	}
	validCaptureMethods = map[string]bool{
		domain.CaptureMethodEMV:         true,
		domain.CaptureMethodMagstripe:   true,
		domain.CaptureMethodContactless: true,
		domain.CaptureMethodEcommerce:   true,
	}
)

const maxInstallments = 24

func (p *RegistrationPipeline) registrationStages() []stage {
	return []stage{
		{name: "resolve_company", run: p.resolveCompany},
		{name: "apply_defaults", run: p.applyDefaults},
		{name: "validate_request", run: p.validateRequest},
		{name: "check_idempotency", run: p.checkIdempotency},
		{name: "resolve_affiliation", run: p.resolveAffiliation},
		{name: "fetch_provider_transaction", run: p.fetchProviderTransaction},
		{name: "derive_split", run: p.deriveSplit},
		{name: "validate_split", run: p.validateSplit},
		{name: "resolve_recipient_affiliations", run: p.resolveRecipientAffiliations},
		{name: "persist", run: p.persist},
		{name: "confirm_on_provider", run: p.confirmOnProvider},
		{name: "side_effects", run: p.emitSideEffects},
		{name: "build_result", run: p.buildResult},
	}
}

func (p *RegistrationPipeline) resolveCompany(ctx context.Context, rc *registrationContext) error {
	if rc.req.CompanyID == "" {
		return &domain.ErrNotFound{Resource: "company", ID: ""}
	}
	c, err := p.stores.Companies.GetCompany(ctx, rc.req.CompanyID)
	if err != nil {
		return err
	}
	rc.company = c
	return nil
}

func (p *RegistrationPipeline) applyDefaults(_ context.Context, rc *registrationContext) error {
	req := rc.req
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	if req.Provider == "" {
		req.Provider = rc.company.DefaultProvider
	}
	if alias, ok := providerAliases[req.Provider]; ok {
		req.Provider = alias
	}

	if req.Locale == "" {
		req.Locale = rc.company.DefaultLocale
	}
	if req.Locale == "" {
		req.Locale = p.cfg.DefaultLocale
	}

	req.CaptureMethod = strings.ToLower(strings.TrimSpace(req.CaptureMethod))
	if req.CaptureMethod == "" {
		req.CaptureMethod = domain.CaptureMethodEMV
	}
	if alias, ok := captureMethodAliases[req.CaptureMethod]; ok {
		req.CaptureMethod = alias
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentMethodCreditCard
	}
	if req.Installments == 0 {
		req.Installments = 1
	}

	req.CardBrand = normalizeCardBrand(req.CardBrand)
	return nil
}

func normalizeCardBrand(brand string) string {
	b := strings.ToLower(strings.TrimSpace(brand))
	if alias, ok := cardBrandAliases[b]; ok {
		return alias
	}
	return b
}

func (p *RegistrationPipeline) validateRequest(_ context.Context, rc *registrationContext) error {
	if err := validateTransactionRequest(rc.req); err != nil {
		return domain.DoNotRetry(err)
	}
	if !p.providers.Enabled(rc.req.Provider) {
		return domain.DoNotRetry(&domain.ErrProviderNotAllowed{Provider: rc.req.Provider})
	}
	return nil
}

func validateTransactionRequest(req *domain.TransactionRequest) error {
	switch {
	case req.Provider == "":
		return &domain.ErrValidation{Field: "provider", Message: "is required"}
	case req.ProviderTransactionID == "":
		return &domain.ErrValidation{Field: "provider_transaction_id", Message: "is required"}
	case req.Amount <= 0:
		return &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	case !validPaymentMethods[req.PaymentMethod]:
		return &domain.ErrValidation{Field: "payment_method", Message: fmt.Sprintf("unsupported value %q", req.PaymentMethod)}
	case !validCaptureMethods[req.CaptureMethod]:
		return &domain.ErrValidation{Field: "capture_method", Message: fmt.Sprintf("unsupported value %q", req.CaptureMethod)}
	case req.Installments < 1 || req.Installments > maxInstallments:
		return &domain.ErrValidation{Field: "installments", Message: fmt.Sprintf("must be between 1 and %d", maxInstallments)}
	case req.PaymentMethod != domain.PaymentMethodCreditCard && req.Installments > 1:
		return &domain.ErrValidation{Field: "installments", Message: "only credit card transactions can be split in installments"}
	case req.CardLastDigits != "" && !isDigits(req.CardLastDigits, 4):
		return &domain.ErrValidation{Field: "card_last_digits", Message: "must be 4 digits"}
	case req.CardFirstDigits != "" && !isDigits(req.CardFirstDigits, 6):
		return &domain.ErrValidation{Field: "card_first_digits", Message: "must be 6 digits"}
	}
	for _, in := range req.SplitRules {
		if in.RecipientID == "" {
			return &domain.ErrValidation{Field: "split_rules.recipient_id", Message: "is required"}
		}
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (p *RegistrationPipeline) checkIdempotency(ctx context.Context, rc *registrationContext) error {
	if p.cfg.LockTTL > 0 && p.locker != nil {
		key := fmt.Sprintf("register:%s:%s", rc.req.Provider, rc.req.ProviderTransactionID)
		start := time.Now()
		h, err := p.locker.Acquire(ctx, key, p.cfg.LockTTL)
		p.metrics.RecordLockWait("register", time.Since(start))
		if err != nil {
			return err
		}
		rc.lock = h
	}
	return p.guard.CheckNotRegistered(ctx, rc.req.Provider, rc.req.ProviderTransactionID)
}

func (p *RegistrationPipeline) resolveAffiliation(ctx context.Context, rc *registrationContext) error {
	aff, err := p.stores.Affiliations.FindAffiliation(ctx, rc.company.ID, rc.req.Provider)
	if err != nil {
		return err
	}
	if !aff.Usable(rc.req.Provider) {
		return &domain.ErrNotFound{Resource: "affiliation", ID: rc.company.ID + "/" + rc.req.Provider}
	}
	connector, err := p.providers.Resolve(rc.req.Locale, rc.req.Provider)
	if err != nil {
		return err
	}
	rc.affiliation = aff
	rc.connector = connector
	return nil
}

func (p *RegistrationPipeline) fetchProviderTransaction(ctx context.Context, rc *registrationContext) error {
	pt, err := rc.connector.GetTransaction(ctx, rc.affiliation, rc.req.ProviderTransactionID)
	if err != nil {
		p.metrics.IncrProviderError(rc.req.Provider, "get")
		return err
	}

	req := rc.req
	tx := &domain.Transaction{
		ID:                    p.newID(),
		CompanyID:             rc.company.ID,
		IsoID:                 rc.company.IsoID(),
		AffiliationID:         rc.affiliation.ID,
		Provider:              req.Provider,
		ProviderTransactionID: req.ProviderTransactionID,
		Locale:                req.Locale,
		Status:                domain.StatusProcessing,
		PaymentMethod:         req.PaymentMethod,
		CaptureMethod:         req.CaptureMethod,
		CardBrand:             req.CardBrand,
		CardHolderName:        req.CardHolderName,
		CardFirstDigits:       req.CardFirstDigits,
		CardLastDigits:        req.CardLastDigits,
		Installments:          req.Installments,
		Amount:                req.Amount,
		GatewayOnly:           rc.affiliation.GatewayOnly,
		CapturedBy:            req.CapturedBy,
		HardwareID:            req.SerialNumber,
		BoletoExpirationDate:  req.BoletoExpirationDate,
		Metadata:              req.Metadata,
	}
	applyProviderView(tx, pt)

	rc.providerStatus = pt.Status
	if !rc.providerStatus.Valid() {
		rc.providerStatus = domain.StatusProcessing
	}
	rc.tx = tx
	return nil
}

// applyProviderView overwrites tx with every field the provider reported.
func applyProviderView(tx *domain.Transaction, pt *domain.ProviderTransaction) {
	if pt.Amount > 0 {
		tx.Amount = pt.Amount
	}
	if pt.PaidAmount > 0 {
		tx.PaidAmount = pt.PaidAmount
	}
	if pt.RefundedAmount > 0 {
		tx.RefundedAmount = pt.RefundedAmount
	}
	if pt.RefundedAt != nil {
		tx.RefundedAt = pt.RefundedAt
	}
	if pt.Installments > 0 {
		tx.Installments = pt.Installments
	}
	if pt.CardBrand != "" {
		tx.CardBrand = normalizeCardBrand(pt.CardBrand)
	}
	if pt.CaptureMethod != "" {
		tx.CaptureMethod = pt.CaptureMethod
	}
	setIfReported(&tx.AcquirerName, pt.AcquirerName)
	setIfReported(&tx.AcquirerResponseCode, pt.AcquirerResponseCode)
	setIfReported(&tx.NSU, pt.NSU)
	setIfReported(&tx.TID, pt.TID)
	setIfReported(&tx.HardwareID, pt.HardwareID)
	setIfReported(&tx.BoletoURL, pt.BoletoURL)
	setIfReported(&tx.BoletoBarcode, pt.BoletoBarcode)
}

func setIfReported(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (p *RegistrationPipeline) deriveSplit(ctx context.Context, rc *registrationContext) error {
	tx := rc.tx
	owner := rc.company.ID

	var instructions []domain.SplitInstruction
	if explicit := split.Complete(tx.Amount, owner, rc.req.SplitRules); len(explicit) >= 2 {
		instructions = explicit
	} else if defaults := split.ExcludeRecipient(owner, rc.company.DefaultSplitRules); len(defaults) > 0 {
		instructions = split.Complete(tx.Amount, owner, defaults)
	}

	if len(instructions) > 0 {
		resolved, err := split.AllocateToOwner(tx.Amount, owner, instructions)
		if err != nil {
			return domain.DoNotRetry(err)
		}
		tx.SplitRules = resolved
		tx.SplitOrigin = domain.SplitOriginTransaction
		tx.HasSplitRules = true
	}

	if rc.providerStatus != domain.StatusPaid && rc.providerStatus != domain.StatusRefunded {
		return nil
	}
	feeRule, err := p.stores.FeeRules.FindFeeRule(ctx, owner)
	if err != nil {
		return err
	}
	if feeRule == nil || len(feeRule.Shares) == 0 {
		return nil
	}

	base := tx.SplitRules
	origin := domain.SplitOriginHybrid
	if len(base) == 0 {
		base = []domain.ResolvedSplit{{RecipientID: owner, Amount: tx.Amount, ChargeProcessingCost: true, Liable: true}}
		origin = domain.SplitOriginFeeRule
	}
	layered, err := split.Layer(tx.Amount, owner, base, feeRule.Instructions())
	if err != nil {
		return domain.DoNotRetry(err)
	}
	tx.SplitRules = layered
	tx.SplitOrigin = origin
	tx.HasSplitRules = true
	return nil
}

func (p *RegistrationPipeline) validateSplit(_ context.Context, rc *registrationContext) error {
	if len(rc.tx.SplitRules) == 0 {
		return nil
	}
	if err := split.ValidateResolved(rc.tx.Amount, rc.tx.SplitRules); err != nil {
		return domain.DoNotRetry(err)
	}
	return nil
}

func (p *RegistrationPipeline) resolveRecipientAffiliations(ctx context.Context, rc *registrationContext) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recipientLookupLimit)

	for _, recipient := range domain.Recipients(rc.tx.SplitRules) {
		recipient := recipient
		if recipient == rc.company.ID {
			continue
		}
		g.Go(func() error {
			aff, err := p.stores.Affiliations.FindAffiliation(gctx, recipient, rc.tx.Provider)
			if err != nil {
				return err
			}
			if !aff.Usable(rc.tx.Provider) {
				return &domain.ErrNotFound{Resource: "affiliation", ID: recipient + "/" + rc.tx.Provider}
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *RegistrationPipeline) persist(ctx context.Context, rc *registrationContext) error {
	now := p.now().UTC()
	rc.tx.Status = domain.StatusProcessing
	rc.tx.CreatedAt = now
	rc.tx.UpdatedAt = now
	if err := p.stores.Transactions.CreateTransaction(ctx, rc.tx); err != nil {
		return err
	}
	p.releaseLock(rc)
	return nil
}

func (p *RegistrationPipeline) confirmOnProvider(ctx context.Context, rc *registrationContext) error {
	tx := rc.tx
	pt, err := rc.connector.RegisterTransaction(ctx, rc.affiliation, tx)
	if err != nil {
		p.metrics.IncrProviderError(tx.Provider, "register")
		return err
	}
	if pt.Amount > 0 && pt.Amount != tx.Amount {
		p.metrics.IncrProviderError(tx.Provider, "register")
		return &domain.ErrProcessChargeOnProvider{
			Provider: tx.Provider,
			Err:      fmt.Errorf("provider confirmed amount %d but the split was built on %d", pt.Amount, tx.Amount),
		}
	}
	applyProviderView(tx, pt)

	status := pt.Status
	if !status.Valid() {
		status = rc.providerStatus
	}
	tx.Status = status
	if status == domain.StatusPaid {
		tx.PaidAmount = tx.Amount
	}
	tx.UpdatedAt = p.now().UTC()
	return p.stores.Transactions.UpdateTransaction(ctx, tx)
}

func (p *RegistrationPipeline) emitSideEffects(ctx context.Context, rc *registrationContext) error {
	tx := rc.tx
	snapshot := tx.External()

	if tx.PayableEligible() {
		p.effects.publish(ctx, effectCreatePayables, domain.MessageCreatePayables,
			domain.CreatePayablesMessage{TransactionID: tx.ID, CompanyID: tx.CompanyID}, tx)
	}
	p.effects.publish(ctx, effectAssignPortfolio, domain.MessageAssignPortfolioToTransaction,
		domain.AssignPortfolioMessage{TransactionID: tx.ID, CompanyID: tx.CompanyID, IsoID: tx.IsoID}, tx)

	p.effects.notify(ctx, tx, domain.WebhookTransactionCreated, "", snapshot)
	p.effects.notify(ctx, tx, domain.WebhookStatusEvent(tx.Status), domain.StatusProcessing, snapshot)

	p.effects.trigger(ctx, domain.EventTransactionRegistered, tx, snapshot)
	return nil
}

func (p *RegistrationPipeline) buildResult(_ context.Context, rc *registrationContext) error {
	rc.result = &RegistrationResult{
		Outcome:     Registered,
		Transaction: rc.tx,
		External:    rc.tx.External(),
	}
	return nil
}
