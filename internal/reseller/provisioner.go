package reseller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ErrReauthExhausted is returned when a call is still unauthorized after one re-login.
var ErrReauthExhausted = errors.New("reseller: re-authentication exhausted")

// API is the subset of Client used behind a Session.
type API interface {
	PurchasePackage(ctx context.Context, token, packageTypeID, iccid string) (*ESIM, error)
	Countries(ctx context.Context, token string) (json.RawMessage, error)
	PackagesByCountry(ctx context.Context, token, countryID string) (json.RawMessage, error)
}

// Provisioner runs authenticated reseller calls. A 401 invalidates the token,
// re-authenticates once and retries the call once.
type Provisioner struct {
	session *Session
	api     API
}

func NewProvisioner(session *Session, api API) *Provisioner {
	return &Provisioner{session: session, api: api}
}

// Provision purchases one unit of packageTypeID.
func (p *Provisioner) Provision(ctx context.Context, packageTypeID string) (*ESIM, error) {
	var esim *ESIM
	err := p.withToken(ctx, func(token string) error {
		var err error
		esim, err = p.api.PurchasePackage(ctx, token, packageTypeID, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return esim, nil
}

// Countries returns the raw country catalog.
func (p *Provisioner) Countries(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.withToken(ctx, func(token string) error {
		var err error
		out, err = p.api.Countries(ctx, token)
		return err
	})
	return out, err
}

// PackagesByCountry returns the raw package list for countryID.
func (p *Provisioner) PackagesByCountry(ctx context.Context, countryID string) (json.RawMessage, error) {
	var out json.RawMessage
	err := p.withToken(ctx, func(token string) error {
		var err error
		out, err = p.api.PackagesByCountry(ctx, token, countryID)
		return err
	})
	return out, err
}

func (p *Provisioner) withToken(ctx context.Context, call func(token string) error) error {
	token, err := p.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("reseller auth: %w", err)
	}

	err = call(token)
	if !errors.Is(err, ErrUnauthorized) {
		return err
	}

	if p.session.Invalidate(token) {
		log.Info("reseller token rejected, re-authenticating")
	}
	token, err = p.session.Token(ctx)
	if err != nil {
		return fmt.Errorf("reseller re-auth: %w", err)
	}
	err = call(token)
	if errors.Is(err, ErrUnauthorized) {
		return fmt.Errorf("%w: %w", ErrReauthExhausted, err)
	}
	return err
}
