package challenge

import (
	"errors"

	"github.com/dmitrymomot/starter/core/binder"
	"github.com/dmitrymomot/starter/core/handler"
	"github.com/dmitrymomot/starter/core/response"
	"github.com/dmitrymomot/starter/pkg/idscope"
)

// issueResponse adds the id of the form field the client widget renders the
// nonce into. It is unique within the request and not part of the signature.
type issueResponse struct {
	Challenge
	FieldID string `json:"field_id"`
}

// IssueHandler answers POST /api/challenge.
func IssueHandler[C handler.Context](svc *Service) handler.HandlerFunc[C] {
	return func(ctx C) handler.Response {
		ch, err := svc.Issue()
		if err != nil {
			return response.Error(err)
		}

		return response.NoStore(response.JSON(issueResponse{
			Challenge: ch,
			FieldID:   idscope.Use(ctx, "pow"),
		}))
	}
}

// RedeemHandler answers POST /api/challenge/redeem.
func RedeemHandler[C handler.Context](svc *Service) handler.HandlerFunc[C] {
	bind := binder.JSON()

	return func(ctx C) handler.Response {
		var sol Solution
		if err := bind(ctx.Request(), &sol); err != nil {
			return response.Error(response.ErrBadRequest.WithError(err))
		}

		if err := svc.Redeem(ctx, sol); err != nil {
			return response.Error(toHTTPError(err))
		}

		return response.NoStore(response.JSON(map[string]bool{"ok": true}))
	}
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrMalformed):
		return response.ErrBadRequest.WithMessage(err.Error())
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrInsufficientWork):
		return response.ErrForbidden.WithMessage(err.Error())
	case errors.Is(err, ErrAlreadyRedeemed):
		return response.ErrConflict.WithMessage(err.Error())
	case errors.Is(err, ErrExpired):
		return response.ErrGone.WithMessage(err.Error())
	case errors.Is(err, ErrReplayUnavailable):
		return response.ErrServiceUnavailable.WithError(err)
	}
	return response.ErrInternalServerError.WithError(err)
}
