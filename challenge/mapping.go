package challenge

import (
	apperrors "github.com/jrsteele09/go-payx-gateway/internal/errors"
	"github.com/jrsteele09/go-payx-gateway/payerauth"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/pkg/errors"
)

// authenticationStatus maps a 3DS2 ARes. A C leaves the session Unknown pending the challenge.
// N and U still succeed here: the issuer makes the final call at authorization.
// Anything outside the protocol letters is an integration failure, never a success.
func authenticationStatus(ts ps.TransactionStatus, isMOTO bool) (ps.ChallengeStatus, error) {
	switch ts {
	case ps.TransactionStatusC:
		return ps.ChallengeStatusUnknown, nil
	case ps.TransactionStatusR, ps.TransactionStatusFR:
		return ps.ChallengeStatusFailed, nil
	case ps.TransactionStatusY, ps.TransactionStatusA, ps.TransactionStatusN, ps.TransactionStatusU:
		if isMOTO {
			return ps.ChallengeStatusByPassed, nil
		}
		return ps.ChallengeStatusSucceeded, nil
	default:
		return "", unexpectedStatus("authenticationStatus", ts)
	}
}

// threeDSOneAuthenticationStatus maps a 3DS1 enrollment/authentication result, where N and U
// are final failures.
func threeDSOneAuthenticationStatus(ts ps.TransactionStatus) (ps.ChallengeStatus, error) {
	switch ts {
	case ps.TransactionStatusC:
		return ps.ChallengeStatusUnknown, nil
	case ps.TransactionStatusN, ps.TransactionStatusU, ps.TransactionStatusR, ps.TransactionStatusFR:
		return ps.ChallengeStatusFailed, nil
	case ps.TransactionStatusY, ps.TransactionStatusA:
		return ps.ChallengeStatusSucceeded, nil
	default:
		return "", unexpectedStatus("threeDSOneAuthenticationStatus", ts)
	}
}

func unexpectedStatus(fn string, ts ps.TransactionStatus) error {
	return errors.Wrapf(apperrors.ErrIntegrationFailure, "[%s] unexpected transStatus %q", fn, string(ts))
}

// completionStatus maps the final challenge result to a terminal status.
func completionStatus(res *payerauth.CompletionResponse) ps.ChallengeStatus {
	switch {
	case res.TransactionStatus.IsRejected():
		return ps.ChallengeStatusFailed
	case res.TransactionStatus != ps.TransactionStatusN:
		return ps.ChallengeStatusSucceeded
	}

	switch res.ChallengeCancel {
	case ps.TransactionTimedOut, ps.TransactionCReqTimedOut:
		return ps.ChallengeStatusTimedOut
	case ps.CancelledByCardHolder, ps.CancelledByRequestor, ps.TransactionAbandoned:
		return ps.ChallengeStatusCancelled
	}
	if res.TransactionStatusReason == ps.TSR14 {
		return ps.ChallengeStatusTimedOut
	}
	return ps.ChallengeStatusSucceeded
}
