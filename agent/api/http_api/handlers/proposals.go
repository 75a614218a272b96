package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	. "github.com/meetd/meetd/agent/api/dto"
	cs "github.com/meetd/meetd/agent/api/http_api/context_service"
	req "github.com/meetd/meetd/agent/api/http_api/requests"
	"github.com/meetd/meetd/agent/api/http_api/responses"
	"github.com/meetd/meetd/agent/repositories/noncerepo"
	"github.com/meetd/meetd/agent/repositories/proposalrepo"
	"github.com/meetd/meetd/agent/services/proposalservice"
	"github.com/meetd/meetd/fsm"
	"github.com/meetd/meetd/proposal"
)

func (a *HTTPApp) IssueProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &IssueProposalDTO{}
	if err := stx.BindToDTO(&req.IssueProposalForm{}, formDTO); err != nil {
		return err
	}

	result, err := a.proposals.Issue(stx.Request().Context(), stx.User(), proposalservice.IssueRequest{
		ToEmail:         formDTO.ToEmail,
		SlotStart:       formDTO.SlotStart,
		DurationMinutes: formDTO.DurationMinutes,
		Title:           formDTO.Title,
		Description:     formDTO.Description,
	})
	if err != nil {
		return stx.JsonError(http.StatusBadRequest, err)
	}

	// Recipients on other agents get the envelope via the relay; the
	// caller still receives it for out-of-band delivery either way.
	if _, lookupErr := a.users.GetByEmail(formDTO.ToEmail); lookupErr != nil {
		if sendErr := a.node.SendEnvelope(stx.User().Email, formDTO.ToEmail, result.SignedProposal); sendErr != nil {
			stx.Logger().Errorf("failed to relay envelope for %s: %v", result.ProposalID, sendErr)
		}
	}

	return stx.Json(http.StatusOK, &responses.IssueProposalResponse{
		ProposalID:     result.ProposalID,
		SignedProposal: result.SignedProposal,
		AcceptLink:     result.AcceptLink,
	})
}

func (a *HTTPApp) GetProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &ProposalIdDTO{}
	if err := stx.BindToDTO(&req.ProposalIdForm{}, formDTO); err != nil {
		return err
	}

	item, err := a.proposals.Get(stx.User(), formDTO.ProposalID)
	if err != nil {
		return proposalError(stx, err)
	}
	return stx.Json(http.StatusOK, item)
}

func (a *HTTPApp) GetInbox(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &InboxDTO{}
	if err := stx.BindToDTO(&req.InboxForm{}, formDTO); err != nil {
		return err
	}

	var status *proposal.Status
	if formDTO.Status != "" {
		parsed, err := proposal.ParseStatus(formDTO.Status)
		if err != nil {
			return stx.JsonError(http.StatusBadRequest, err)
		}
		status = &parsed
	}

	inbox, err := a.proposals.Inbox(stx.User(), status)
	if err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}
	return stx.Json(http.StatusOK, inbox)
}

func (a *HTTPApp) GetSent(c echo.Context) error {
	stx := c.(*cs.ContextService)

	sent, err := a.proposals.Sent(stx.User())
	if err != nil {
		return stx.JsonError(http.StatusInternalServerError, err)
	}
	return stx.Json(http.StatusOK, sent)
}

func (a *HTTPApp) AcceptProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &ProposalIdDTO{}
	if err := stx.BindToDTO(&req.ProposalIdForm{}, formDTO); err != nil {
		return err
	}

	result, err := a.proposals.Accept(stx.Request().Context(), stx.User(), formDTO.ProposalID)
	if err != nil {
		return proposalError(stx, err)
	}

	return stx.Json(http.StatusOK, &responses.AcceptProposalResponse{
		Status: result.Status,
		Event:  result.Event,
	})
}

func (a *HTTPApp) DeclineProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &ProposalIdDTO{}
	if err := stx.BindToDTO(&req.ProposalIdForm{}, formDTO); err != nil {
		return err
	}

	if err := a.proposals.Decline(stx.Request().Context(), stx.User(), formDTO.ProposalID); err != nil {
		return proposalError(stx, err)
	}

	return stx.Json(http.StatusOK, &responses.DeclineProposalResponse{
		Status: proposal.StatusDeclined,
	})
}

func (a *HTTPApp) ReceiveProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &ReceiveProposalDTO{}
	if err := stx.BindToDTO(&req.ReceiveProposalForm{}, formDTO); err != nil {
		return err
	}

	result, err := a.proposals.Receive(
		stx.Request().Context(), stx.User(), formDTO.SignedProposal, formDTO.AutoAccept)
	if err != nil {
		return proposalError(stx, err)
	}

	return stx.Json(http.StatusOK, &responses.ReceiveProposalResponse{
		ProposalID: result.ProposalID,
		Status:     result.Status,
		Event:      result.Event,
	})
}

// VerifyProposal never rejects: malformed or forged envelopes come back
// as valid=false with a reason.
func (a *HTTPApp) VerifyProposal(c echo.Context) error {
	stx := c.(*cs.ContextService)
	formDTO := &VerifyProposalDTO{}
	if err := stx.BindToDTO(&req.VerifyProposalForm{}, formDTO); err != nil {
		return err
	}

	result := a.proposals.Verify(formDTO.SignedProposal)
	return stx.Json(http.StatusOK, &responses.VerifyProposalResponse{
		Valid:    result.Valid,
		Proposal: result.Proposal,
		Reason:   result.Reason,
	})
}

// proposalError maps the service's rejection reasons onto HTTP codes.
func proposalError(stx *cs.ContextService, err error) error {
	var stateErr *fsm.InvalidStateError
	switch {
	case errors.Is(err, proposalrepo.ErrNotFound):
		return stx.JsonError(http.StatusNotFound, err)
	case errors.Is(err, proposalservice.ErrNotAuthorized),
		errors.Is(err, proposalservice.ErrNotAddressee):
		return stx.JsonError(http.StatusForbidden, err)
	case errors.As(err, &stateErr),
		errors.Is(err, noncerepo.ErrAlreadyUsed):
		return stx.JsonError(http.StatusConflict, err)
	default:
		return stx.JsonError(http.StatusBadRequest, err)
	}
}
