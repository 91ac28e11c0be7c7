package billing

import (
	"time"

	"github.com/subsyncapp/subsync/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	GetUserByUUID(uuid string) (*models.User, error)
	GetOrganizationByUUID(uuid string) (*models.Organization, error)

	GetCustomerByStripeID(stripeCustomerID string) (*models.Customer, error)
	GetCustomerByPrincipal(ref PrincipalRef) (*models.Customer, error)
	GetCustomerByPrincipalID(principalID string) (*models.Customer, error)
	CreateCustomer(customer *models.Customer) error
	SetCustomerActive(customerID uint, active bool) error

	UpsertSubscription(sub *models.Subscription) error
	GetActiveSubscription(customerID uint) (*models.Subscription, error)
	UpdateSubscriptionStatus(stripeSubscriptionID, status string) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByUUID(uuid string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("uuid = ?", uuid).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *gormRepository) GetOrganizationByUUID(uuid string) (*models.Organization, error) {
	var org models.Organization
	if err := r.db.Where("uuid = ?", uuid).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}

func (r *gormRepository) GetCustomerByStripeID(stripeCustomerID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("stripe_customer_id = ?", stripeCustomerID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) GetCustomerByPrincipal(ref PrincipalRef) (*models.Customer, error) {
	column := "user_id"
	if ref.Kind == PrincipalOrganization {
		column = "organization_id"
	}
	var customer models.Customer
	if err := r.db.Where(column+" = ?", ref.ID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomerByPrincipalID probes both reference columns in one query.
// User and organization UUIDs come from disjoint ID spaces, so at most one
// column can match.
func (r *gormRepository) GetCustomerByPrincipalID(principalID string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.Where("user_id = ? OR organization_id = ?", principalID, principalID).
		First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *gormRepository) CreateCustomer(customer *models.Customer) error {
	return r.db.Create(customer).Error
}

func (r *gormRepository) SetCustomerActive(customerID uint, active bool) error {
	return r.db.Model(&models.Customer{}).Where("id = ?", customerID).
		Update("is_active", active).Error
}

// UpsertSubscription is a single atomic statement keyed on the unique
// stripe_subscription_id column, not a read-then-write split. Concurrent
// events for the same subscription cannot lose updates.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "stripe_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"customer_id",
			"status",
			"plan",
			"current_period_start",
			"current_period_end",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_subscription_id = ?", sub.StripeSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) GetActiveSubscription(customerID uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("customer_id = ? AND status = ?", customerID, models.BillingStatusActive).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) UpdateSubscriptionStatus(stripeSubscriptionID, status string) error {
	return r.db.Model(&models.Subscription{}).
		Where("stripe_subscription_id = ?", stripeSubscriptionID).
		Update("status", status).Error
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
