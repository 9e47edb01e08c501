// Package billing wraps the Stripe calls the gateway exposes: subscription
// checkout, the customer portal, and post-checkout confirmation.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/prosperlabs/prosper/pkg/core"
)

type Config struct {
	PriceID         string
	SuccessURL      string
	CancelURL       string
	PortalReturnURL string
}

// Client is the billing surface the handlers depend on. Tests substitute a
// fake; production uses StripeClient.
type Client interface {
	EnsureCustomer(ctx context.Context, householdID, existingID string) (string, error)
	CreateCheckoutSession(ctx context.Context, customerID string) (string, error)
	CreatePortalSession(ctx context.Context, customerID string) (string, error)
	ConfirmCheckout(ctx context.Context, checkoutSessionID string) (Confirmation, error)
}

// Confirmation is the state read back from a completed checkout session.
type Confirmation struct {
	CustomerID         string
	SubscriptionStatus string
	CurrentPeriodEnd   *time.Time
}

type StripeClient struct {
	sc  *stripe.Client
	cfg Config
}

func NewStripeClient(secretKey string, cfg Config) *StripeClient {
	return &StripeClient{sc: stripe.NewClient(secretKey), cfg: cfg}
}

// EnsureCustomer returns the existing Stripe customer id or creates one
// tagged with the household id.
func (c *StripeClient) EnsureCustomer(ctx context.Context, householdID, existingID string) (string, error) {
	if existingID != "" {
		return existingID, nil
	}
	cust, err := c.sc.V1Customers.Create(ctx, &stripe.CustomerCreateParams{
		Metadata: map[string]string{"household_id": householdID},
	})
	if err != nil {
		return "", core.NewTransportError("stripe create customer", err)
	}
	return cust.ID, nil
}

func (c *StripeClient) CreateCheckoutSession(ctx context.Context, customerID string) (string, error) {
	sess, err := c.sc.V1CheckoutSessions.Create(ctx, &stripe.CheckoutSessionCreateParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(customerID),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{Price: stripe.String(c.cfg.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(c.cfg.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.cfg.CancelURL),
	})
	if err != nil {
		return "", core.NewTransportError("stripe create checkout session", err)
	}
	return sess.URL, nil
}

func (c *StripeClient) CreatePortalSession(ctx context.Context, customerID string) (string, error) {
	sess, err := c.sc.V1BillingPortalSessions.Create(ctx, &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(c.cfg.PortalReturnURL),
	})
	if err != nil {
		return "", core.NewTransportError("stripe create portal session", err)
	}
	return sess.URL, nil
}

func (c *StripeClient) ConfirmCheckout(ctx context.Context, checkoutSessionID string) (Confirmation, error) {
	sess, err := c.sc.V1CheckoutSessions.Retrieve(ctx, checkoutSessionID, &stripe.CheckoutSessionRetrieveParams{
		Expand: []*string{stripe.String("subscription")},
	})
	if err != nil {
		return Confirmation{}, core.NewTransportError("stripe retrieve checkout session", err)
	}
	if sess.Status != stripe.CheckoutSessionStatusComplete {
		return Confirmation{}, core.NewInvalidRequestError(
			fmt.Sprintf("checkout session not complete: %s", sess.Status))
	}

	conf := Confirmation{SubscriptionStatus: "active"}
	if sess.Customer != nil {
		conf.CustomerID = sess.Customer.ID
	}
	if sub := sess.Subscription; sub != nil {
		conf.SubscriptionStatus = string(sub.Status)
		if sub.Items != nil && len(sub.Items.Data) > 0 {
			if end := sub.Items.Data[0].CurrentPeriodEnd; end > 0 {
				t := time.Unix(end, 0).UTC()
				conf.CurrentPeriodEnd = &t
			}
		}
	}
	return conf, nil
}
