package server

import (
	"errors"
	"net/http"

	"github.com/DoyleJ11/dungeon-club/internal/account"
	"github.com/DoyleJ11/dungeon-club/internal/campaign"
	"github.com/DoyleJ11/dungeon-club/pkg/protocol"
)

var (
	validationErrors = []error{
		account.ErrInvalidEmail,
		account.ErrWeakPassword,
		account.ErrEmailTaken,
		campaign.ErrCampaignNotFound,
		campaign.ErrTemplateNotFound,
		campaign.ErrBoardNotFound,
		campaign.ErrTokenNotFound,
		campaign.ErrInvalidName,
		campaign.ErrInvalidOrder,
		campaign.ErrTemplateInUse,
		campaign.ErrNoSelectedBoard,
		campaign.ErrInvalidPosition,
	}
	authorizationErrors = []error{
		account.ErrInvalidCredentials,
		account.ErrInvalidToken,
		campaign.ErrForbidden,
	}
)

// toProtocol maps domain errors onto protocol codes. Anything else passes through and is
// reported to the client as a storage error.
func toProtocol(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return protocol.ValidationError("%s", target.Error())
		}
	}
	for _, target := range authorizationErrors {
		if errors.Is(err, target) {
			return protocol.AuthorizationError("%s", target.Error())
		}
	}
	return err
}

// HTTPStatus is toProtocol for the REST endpoints.
func HTTPStatus(err error) int {
	switch code, _ := protocol.CodeOf(toProtocol(err)); code {
	case protocol.CodeValidation:
		if errors.Is(err, campaign.ErrCampaignNotFound) || errors.Is(err, campaign.ErrBoardNotFound) {
			return http.StatusNotFound
		}
		return http.StatusBadRequest
	case protocol.CodeAuthorization:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
