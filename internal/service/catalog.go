package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/Skotchmaster/marketplace/internal/cart"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/search"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CatalogService owns products and prices and keeps them in step with the
// seller's connected payment account.
type CatalogService struct {
	Repo         *repo.GormRepo
	Payments     payments.Processor
	Events       events.Publisher
	Index        search.Indexer
	Search       search.Searcher
	Compensation Compensator
}

type productInput struct {
	Name        string
	Description string
	Images      []string
	Prices      []priceInput
	Tags        []string
	TagsSet     bool
}

type priceInput struct {
	ID                *uuid.UUID
	UnitAmount        int64
	Currency          string
	IsDefault         bool
	PaymentStyle      models.PaymentStyle
	AllocatedQuantity int
	MarketplaceID     *uuid.UUID
}

func normalizeProduct(req transport.ProductRequest) (*productInput, error) {
	in := &productInput{
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
		Images:      []string{},
		TagsSet:     req.Tags != nil,
	}
	if in.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	for _, img := range req.Images {
		if img = strings.TrimSpace(img); img != "" {
			in.Images = append(in.Images, img)
		}
	}
	if len(req.Prices) == 0 {
		return nil, fmt.Errorf("%w: at least one price required", ErrValidation)
	}

	defaults := 0
	seenIDs := map[uuid.UUID]bool{}
	seenMarkets := map[uuid.UUID]bool{}
	for _, p := range req.Prices {
		if p.UnitAmount <= 0 || p.UnitAmount > cart.MaxAmount {
			return nil, fmt.Errorf("%w: unit_amount must be between 1 and %d", ErrValidation, cart.MaxAmount)
		}
		if p.AllocatedQuantity < 0 {
			return nil, fmt.Errorf("%w: allocated_quantity must be >= 0", ErrValidation)
		}
		style := models.PaymentStyle(strings.ToUpper(p.PaymentStyle))
		if style == "" {
			style = models.PaymentInstant
		}
		if !style.Valid() {
			return nil, fmt.Errorf("%w: unknown payment_style %q", ErrValidation, p.PaymentStyle)
		}
		currency := strings.ToLower(strings.TrimSpace(p.Currency))
		if currency == "" {
			currency = "usd"
		}
		if len(currency) != 3 {
			return nil, fmt.Errorf("%w: currency must be a 3-letter code", ErrValidation)
		}
		if p.ID != nil {
			if seenIDs[*p.ID] {
				return nil, fmt.Errorf("%w: price %s listed twice", ErrValidation, *p.ID)
			}
			seenIDs[*p.ID] = true
		}
		if p.MarketplaceID != nil {
			if seenMarkets[*p.MarketplaceID] {
				return nil, fmt.Errorf("%w: one price per marketplace", ErrValidation)
			}
			seenMarkets[*p.MarketplaceID] = true
		}
		if p.IsDefault {
			defaults++
		}
		in.Prices = append(in.Prices, priceInput{
			ID:                p.ID,
			UnitAmount:        p.UnitAmount,
			Currency:          currency,
			IsDefault:         p.IsDefault,
			PaymentStyle:      style,
			AllocatedQuantity: p.AllocatedQuantity,
			MarketplaceID:     p.MarketplaceID,
		})
	}
	if defaults != 1 {
		return nil, fmt.Errorf("%w: exactly one default price required", ErrValidation)
	}

	seenTags := map[string]bool{}
	for _, t := range req.Tags {
		t = strings.TrimSpace(t)
		if t == "" || seenTags[t] {
			continue
		}
		if err := checkTagName(t); err != nil {
			return nil, err
		}
		seenTags[t] = true
		in.Tags = append(in.Tags, t)
	}
	return in, nil
}

func (in *productInput) totalQuantity() int {
	total := 0
	for _, p := range in.Prices {
		total += p.AllocatedQuantity
	}
	return total
}

// checkMarketplaces requires every referenced marketplace to exist and the
// user to own or belong to it.
func (s *CatalogService) checkMarketplaces(ctx context.Context, userID string, prices []priceInput) error {
	var ids []uuid.UUID
	for _, p := range prices {
		if p.MarketplaceID != nil && !slices.Contains(ids, *p.MarketplaceID) {
			ids = append(ids, *p.MarketplaceID)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	n, err := s.Repo.CountMarketplaces(ctx, ids)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%w: marketplace", ErrNotFound)
	}
	n, err = s.Repo.CountAccessibleMarketplaces(ctx, userID, ids)
	if err != nil {
		return err
	}
	if n != int64(len(ids)) {
		return fmt.Errorf("%w: not a member of the marketplace", ErrForbidden)
	}
	return nil
}

func productParams(p *models.Product) payments.ProductParams {
	return payments.ProductParams{
		LocalID:     p.ID.String(),
		Name:        p.Name,
		Description: p.Description,
		Images:      p.Images,
	}
}

func priceParams(remoteProductID string, p *models.Price) payments.PriceParams {
	return payments.PriceParams{
		ProductID:  remoteProductID,
		UnitAmount: p.UnitAmount,
		Currency:   p.Currency,
		Metadata:   priceMetadata(p),
	}
}

func priceMetadata(p *models.Price) map[string]string {
	md := map[string]string{
		"localPriceId": p.ID.String(),
		"paymentStyle": string(p.PaymentStyle),
		"isDefault":    fmt.Sprint(p.IsDefault),
	}
	if p.MarketplaceID != nil {
		md["marketplaceId"] = p.MarketplaceID.String()
	}
	return md
}

// undoRemoteProduct removes a remote product created for a write that did
// not persist. Products that cannot be deleted are archived with their prices.
func (s *CatalogService) undoRemoteProduct(ctx context.Context, account, productID string, priceIDs []string) {
	s.Compensation.Run(ctx, "product", productID, func(ctx context.Context) error {
		if err := s.Payments.DeleteProduct(ctx, account, productID); err == nil {
			return nil
		}
		for _, id := range priceIDs {
			if err := s.Payments.DeactivatePrice(ctx, account, id); err != nil {
				return err
			}
		}
		return s.Payments.ArchiveProduct(ctx, account, productID)
	})
}

func (s *CatalogService) undoRemotePrices(ctx context.Context, account string, priceIDs []string) {
	for _, id := range priceIDs {
		s.Compensation.Run(ctx, "price", id, func(ctx context.Context) error {
			return s.Payments.DeactivatePrice(ctx, account, id)
		})
	}
}

func (s *CatalogService) applyTags(ctx context.Context, tx *repo.GormRepo, productID uuid.UUID, names []string, createdBy string) error {
	tags, err := tx.EnsureTags(ctx, names, createdBy)
	if err != nil {
		return err
	}
	ids := make([]uuid.UUID, 0, len(tags))
	for _, t := range tags {
		ids = append(ids, t.ID)
	}
	return tx.SetProductTags(ctx, productID, ids)
}

// CreateProduct writes the product remotely first when the seller is
// connected. Nothing is stored locally unless every remote object exists.
func (s *CatalogService) CreateProduct(ctx context.Context, seller Actor, req transport.ProductRequest) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog", "op", "create_product", "seller_id", seller.ID)

	in, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}
	for _, p := range in.Prices {
		if p.ID != nil {
			return nil, fmt.Errorf("%w: new product cannot reference existing prices", ErrValidation)
		}
	}
	if err := s.checkMarketplaces(ctx, seller.ID, in.Prices); err != nil {
		return nil, err
	}
	user, err := ensureUser(ctx, s.Repo, seller.ID, seller.Email)
	if err != nil {
		return nil, err
	}

	prod := &models.Product{
		ID:            uuid.New(),
		Name:          in.Name,
		Description:   in.Description,
		Images:        in.Images,
		SellerID:      seller.ID,
		TotalQuantity: in.totalQuantity(),
	}
	for _, p := range in.Prices {
		prod.Prices = append(prod.Prices, models.Price{
			ID:                uuid.New(),
			ProductID:         prod.ID,
			StripePriceID:     models.PlaceholderPriceID,
			UnitAmount:        p.UnitAmount,
			Currency:          p.Currency,
			IsDefault:         p.IsDefault,
			PaymentStyle:      p.PaymentStyle,
			AllocatedQuantity: p.AllocatedQuantity,
			MarketplaceID:     p.MarketplaceID,
		})
	}

	var account string
	var remotePrices []string
	if user.Connected() {
		account = *user.StripeAccountID
		remoteID, err := s.Payments.CreateProduct(ctx, account, productParams(prod))
		if err != nil {
			l.Warn("remote_create_failed", "object", "product", "error", err)
			return nil, upstream("create product", err)
		}
		prod.StripeProductID = &remoteID

		for i := range prod.Prices {
			priceID, err := s.Payments.CreatePrice(ctx, account, priceParams(remoteID, &prod.Prices[i]))
			if err != nil {
				l.Warn("remote_create_failed", "object", "price", "error", err)
				s.undoRemoteProduct(ctx, account, remoteID, remotePrices)
				return nil, upstream("create price", err)
			}
			prod.Prices[i].StripePriceID = priceID
			remotePrices = append(remotePrices, priceID)
		}
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.CreateProduct(ctx, prod); err != nil {
			return err
		}
		return s.applyTags(ctx, tx, prod.ID, in.Tags, seller.ID)
	})
	if err != nil {
		l.Error("db_error", "error", err)
		if prod.StripeProductID != nil {
			s.undoRemoteProduct(ctx, account, *prod.StripeProductID, remotePrices)
		}
		return nil, err
	}

	created, err := s.Repo.GetProduct(ctx, prod.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.TopicProducts, created.ID.String(), productEvent(EventProductCreated, created))
	index(ctx, s.Index, created)

	l.Info("product_created", "product_id", created.ID, "synced", created.Synced())
	return created, nil
}

func (s *CatalogService) ownedProduct(ctx context.Context, sellerID string, id uuid.UUID) (*models.Product, error) {
	prod, err := s.Repo.GetProduct(ctx, id)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if prod.SellerID != sellerID {
		return nil, fmt.Errorf("%w: product belongs to another seller", ErrForbidden)
	}
	return prod, nil
}

// connectedAccount returns the seller's account id, or "" when not connected.
func (s *CatalogService) connectedAccount(ctx context.Context, sellerID string) (string, error) {
	u, err := s.Repo.GetUser(ctx, sellerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !u.Connected() {
		return "", nil
	}
	return *u.StripeAccountID, nil
}

// remoteProduct returns the remote product linked to prod, reusing one that
// already carries the local id before creating a new one.
func (s *CatalogService) remoteProduct(ctx context.Context, account string, prod *models.Product) (id string, created bool, err error) {
	if prod.StripeProductID != nil && *prod.StripeProductID != "" {
		return *prod.StripeProductID, false, s.Payments.UpdateProduct(ctx, account, *prod.StripeProductID, productParams(prod))
	}
	id, err = s.Payments.FindProductByLocalID(ctx, account, prod.ID.String())
	if err == nil {
		return id, false, s.Payments.UpdateProduct(ctx, account, id, productParams(prod))
	}
	if !errors.Is(err, payments.ErrNotFound) {
		return "", false, err
	}
	id, err = s.Payments.CreateProduct(ctx, account, productParams(prod))
	return id, err == nil, err
}

// UpdateProduct reconciles the stored product and its prices with the
// request. Prices are matched by id: changed amounts get a new remote price,
// prices missing from the request are deactivated and deleted. Remote
// failures leave the price unsynced instead of failing the update.
func (s *CatalogService) UpdateProduct(ctx context.Context, seller Actor, id uuid.UUID, req transport.ProductRequest) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog", "op", "update_product", "seller_id", seller.ID, "product_id", id)

	in, err := normalizeProduct(req)
	if err != nil {
		return nil, err
	}
	prod, err := s.ownedProduct(ctx, seller.ID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkMarketplaces(ctx, seller.ID, in.Prices); err != nil {
		return nil, err
	}

	existing := make(map[uuid.UUID]models.Price, len(prod.Prices))
	for _, p := range prod.Prices {
		existing[p.ID] = p
	}
	for _, p := range in.Prices {
		if p.ID != nil {
			if _, ok := existing[*p.ID]; !ok {
				return nil, fmt.Errorf("%w: price %s does not belong to the product", ErrValidation, *p.ID)
			}
		}
	}

	account, err := s.connectedAccount(ctx, seller.ID)
	if err != nil {
		return nil, err
	}

	prod.Name = in.Name
	prod.Description = in.Description
	prod.Images = in.Images
	prod.TotalQuantity = in.totalQuantity()

	remoteID := prod.StripeProductID
	createdRemote := false
	if account != "" {
		rid, created, err := s.remoteProduct(ctx, account, prod)
		createdRemote = created
		switch {
		case err != nil && rid == "":
			l.Warn("remote_sync_drift", "object", "product", "error", err)
		case err != nil:
			l.Warn("remote_sync_drift", "object", "product", "remote_id", rid, "error", err)
			remoteID = &rid
		default:
			remoteID = &rid
		}
	}
	canSync := account != "" && remoteID != nil

	var (
		toUpdate    []models.Price
		toCreate    []models.Price
		toDelete    []uuid.UUID
		newRemote   []string
		retireAfter []string
		kept        = map[uuid.UUID]bool{}
	)

	createRemote := func(p *models.Price) {
		if !canSync {
			p.StripePriceID = models.PlaceholderPriceID
			return
		}
		priceID, err := s.Payments.CreatePrice(ctx, account, priceParams(*remoteID, p))
		if err != nil {
			l.Warn("remote_sync_drift", "object", "price", "price_id", p.ID, "error", err)
			p.StripePriceID = models.PlaceholderPriceID
			return
		}
		p.StripePriceID = priceID
		newRemote = append(newRemote, priceID)
	}

	for _, pi := range in.Prices {
		if pi.ID == nil {
			p := models.Price{
				ID:                uuid.New(),
				ProductID:         prod.ID,
				UnitAmount:        pi.UnitAmount,
				Currency:          pi.Currency,
				IsDefault:         pi.IsDefault,
				PaymentStyle:      pi.PaymentStyle,
				AllocatedQuantity: pi.AllocatedQuantity,
				MarketplaceID:     pi.MarketplaceID,
			}
			createRemote(&p)
			toCreate = append(toCreate, p)
			continue
		}

		old := existing[*pi.ID]
		kept[old.ID] = true
		p := old
		p.IsDefault = pi.IsDefault
		p.PaymentStyle = pi.PaymentStyle
		p.AllocatedQuantity = pi.AllocatedQuantity
		p.MarketplaceID = pi.MarketplaceID

		if pi.UnitAmount == old.UnitAmount && pi.Currency == old.Currency {
			if canSync && old.Synced() {
				if err := s.Payments.UpdatePriceMetadata(ctx, account, old.StripePriceID, priceMetadata(&p)); err != nil {
					l.Warn("remote_sync_drift", "object", "price_metadata", "price_id", p.ID, "error", err)
				}
			}
			toUpdate = append(toUpdate, p)
			continue
		}

		p.UnitAmount = pi.UnitAmount
		p.Currency = pi.Currency
		createRemote(&p)
		if old.Synced() && account != "" {
			retireAfter = append(retireAfter, old.StripePriceID)
		}
		toUpdate = append(toUpdate, p)
	}
	for _, old := range prod.Prices {
		if kept[old.ID] {
			continue
		}
		toDelete = append(toDelete, old.ID)
		if old.Synced() && account != "" {
			retireAfter = append(retireAfter, old.StripePriceID)
		}
	}

	err = s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		if err := tx.UpdateProductFields(ctx, prod); err != nil {
			return err
		}
		if remoteID != nil && (prod.StripeProductID == nil || *prod.StripeProductID != *remoteID) {
			if err := tx.SetProductStripeID(ctx, prod.ID, remoteID); err != nil {
				return err
			}
		}
		for _, id := range toDelete {
			if err := tx.DeletePrice(ctx, id); err != nil {
				return err
			}
		}
		for i := range toUpdate {
			if err := tx.UpdatePrice(ctx, &toUpdate[i]); err != nil {
				return err
			}
		}
		for i := range toCreate {
			if err := tx.CreatePrice(ctx, &toCreate[i]); err != nil {
				return err
			}
		}
		if in.TagsSet {
			return s.applyTags(ctx, tx, prod.ID, in.Tags, seller.ID)
		}
		return nil
	})
	if err != nil {
		l.Error("db_error", "error", err)
		switch {
		case createdRemote:
			// Nothing local points at the new remote product.
			s.undoRemoteProduct(ctx, account, *remoteID, newRemote)
		case len(newRemote) > 0:
			s.undoRemotePrices(ctx, account, newRemote)
		}
		return nil, notFound(err, "product")
	}

	for _, priceID := range retireAfter {
		if err := s.Payments.DeactivatePrice(ctx, account, priceID); err != nil {
			l.Warn("remote_sync_drift", "object", "retired_price", "remote_id", priceID, "error", err)
		}
	}

	updated, err := s.Repo.GetProduct(ctx, prod.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.TopicProducts, updated.ID.String(), productEvent(EventProductUpdated, updated))
	index(ctx, s.Index, updated)

	l.Info("product_updated", "synced", updated.Synced(), "retired_prices", len(retireAfter))
	return updated, nil
}

// DeleteProduct removes the product locally. With deleteRemote the remote
// product is archived and its prices deactivated; failures there are logged.
func (s *CatalogService) DeleteProduct(ctx context.Context, seller Actor, id uuid.UUID, deleteRemote bool) error {
	l := logging.FromContext(ctx).With("svc", "catalog", "op", "delete_product", "seller_id", seller.ID, "product_id", id)

	prod, err := s.ownedProduct(ctx, seller.ID, id)
	if err != nil {
		return err
	}
	if err := s.Repo.DeleteProduct(ctx, id); err != nil {
		return notFound(err, "product")
	}

	if deleteRemote && prod.StripeProductID != nil {
		account, err := s.connectedAccount(ctx, seller.ID)
		switch {
		case err != nil:
			l.Warn("remote_delete_skipped", "error", err)
		case account == "":
			l.Warn("remote_delete_skipped", "reason", "seller not connected")
		default:
			for _, p := range prod.Prices {
				if !p.Synced() {
					continue
				}
				if err := s.Payments.DeactivatePrice(ctx, account, p.StripePriceID); err != nil {
					l.Warn("remote_delete_failed", "object", "price", "remote_id", p.StripePriceID, "error", err)
				}
			}
			if err := s.Payments.ArchiveProduct(ctx, account, *prod.StripeProductID); err != nil {
				l.Warn("remote_delete_failed", "object", "product", "remote_id", *prod.StripeProductID, "error", err)
			}
		}
	}

	publish(ctx, s.Events, events.TopicProducts, id.String(), productEvent(EventProductDeleted, prod))
	unindex(ctx, s.Index, id)

	l.Info("product_deleted", "remote", deleteRemote)
	return nil
}

// ForceSync pushes an unsynced product and its placeholder prices to the
// seller's account. It is safe to repeat: a remote product carrying the local
// id is reused and each synced price is stored as soon as it exists.
func (s *CatalogService) ForceSync(ctx context.Context, seller Actor, id uuid.UUID) (*models.Product, error) {
	l := logging.FromContext(ctx).With("svc", "catalog", "op", "force_sync", "seller_id", seller.ID, "product_id", id)

	prod, err := s.ownedProduct(ctx, seller.ID, id)
	if err != nil {
		return nil, err
	}
	account, err := s.connectedAccount(ctx, seller.ID)
	if err != nil {
		return nil, err
	}
	if account == "" {
		return nil, ErrNotConnected
	}

	remoteID, _, err := s.remoteProduct(ctx, account, prod)
	if remoteID == "" {
		l.Warn("remote_sync_failed", "object", "product", "error", err)
		return nil, upstream("sync product", err)
	}
	if err != nil {
		l.Warn("remote_sync_drift", "object", "product", "remote_id", remoteID, "error", err)
	}
	if prod.StripeProductID == nil || *prod.StripeProductID != remoteID {
		if err := s.Repo.SetProductStripeID(ctx, prod.ID, &remoteID); err != nil {
			return nil, err
		}
	}

	for i := range prod.Prices {
		p := &prod.Prices[i]
		if p.Synced() {
			continue
		}
		priceID, err := s.Payments.CreatePrice(ctx, account, priceParams(remoteID, p))
		if err != nil {
			l.Warn("remote_sync_failed", "object", "price", "price_id", p.ID, "error", err)
			return nil, upstream("sync price", err)
		}
		if err := s.Repo.SetPriceStripeID(ctx, p.ID, priceID); err != nil {
			s.undoRemotePrices(ctx, account, []string{priceID})
			return nil, err
		}
	}

	synced, err := s.Repo.GetProduct(ctx, prod.ID)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.TopicProducts, synced.ID.String(), productEvent(EventProductSynced, synced))
	index(ctx, s.Index, synced)

	l.Info("product_synced")
	return synced, nil
}

type SyncReport struct {
	Synced  []uuid.UUID `json:"synced"`
	Failed  []uuid.UUID `json:"failed"`
	Skipped int         `json:"skipped"`
}

// SyncAll runs ForceSync over every unsynced product of the seller.
func (s *CatalogService) SyncAll(ctx context.Context, seller Actor) (*SyncReport, error) {
	account, err := s.connectedAccount(ctx, seller.ID)
	if err != nil {
		return nil, err
	}
	if account == "" {
		return nil, ErrNotConnected
	}

	items, err := s.Repo.ListProductsBySeller(ctx, seller.ID)
	if err != nil {
		return nil, err
	}
	report := &SyncReport{Synced: []uuid.UUID{}, Failed: []uuid.UUID{}}
	for i := range items {
		if items[i].Synced() {
			report.Skipped++
			continue
		}
		if _, err := s.ForceSync(ctx, seller, items[i].ID); err != nil {
			report.Failed = append(report.Failed, items[i].ID)
			continue
		}
		report.Synced = append(report.Synced, items[i].ID)
	}
	return report, nil
}

func (s *CatalogService) GetProduct(ctx context.Context, seller Actor, id uuid.UUID) (*models.Product, error) {
	return s.ownedProduct(ctx, seller.ID, id)
}

func (s *CatalogService) ListProducts(ctx context.Context, seller Actor) ([]models.Product, error) {
	return s.Repo.ListProductsBySeller(ctx, seller.ID)
}

func (s *CatalogService) SearchProducts(ctx context.Context, query string, offset, limit int) (int64, []search.Document, error) {
	searcher := s.Search
	if searcher == nil {
		searcher = &search.Database{Repo: s.Repo}
	}
	return searcher.Search(ctx, query, offset, limit)
}
