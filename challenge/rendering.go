package challenge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/jrsteele09/go-payx-gateway/payerauth"
	ps "github.com/jrsteele09/go-payx-gateway/paymentsession"
	"github.com/pkg/errors"
)

// EMV challengeWindowSize codes.
var windowSizeCodes = map[ps.ChallengeWindowSize]string{
	ps.ChallengeWindowSizeOne:   "01",
	ps.ChallengeWindowSizeTwo:   "02",
	ps.ChallengeWindowSizeThree: "03",
	ps.ChallengeWindowSizeFour:  "04",
	ps.ChallengeWindowSizeFive:  "05",
}

type creq struct {
	ThreeDSServerTransID string `json:"threeDSServerTransID"`
	AcsTransID           string `json:"acsTransID"`
	MessageType          string `json:"messageType"`
	MessageVersion       string `json:"messageVersion"`
	ChallengeWindowSize  string `json:"challengeWindowSize"`
}

type methodData struct {
	ThreeDSServerTransID         string `json:"threeDSServerTransID"`
	ThreeDSMethodNotificationURL string `json:"threeDSMethodNotificationURL"`
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// challengeRendering builds what the client needs to show the ACS challenge, sized to the
// session's window. An unknown window size is an InvalidRequestData error.
func challengeRendering(s *ps.PaymentSession, res *payerauth.AuthenticationResponse) (*ps.AcsRendering, error) {
	dims, ok := s.ChallengeWindowSize.Dimensions()
	if !ok {
		return nil, ps.NewInvalidRequestData("challengeWindowSize %q is not supported", s.ChallengeWindowSize)
	}

	rendering := &ps.AcsRendering{
		Width:      dims.Width,
		Height:     dims.Height,
		AcsTransID: res.AcsTransactionID,
	}

	if s.DeviceChannel == ps.DeviceChannelAppBased {
		rendering.AcsSignedContent = res.AcsSignedContent
		rendering.AcsReferenceNumber = res.AcsReferenceNumber
		return rendering, nil
	}

	encoded, err := encodeJSON(creq{
		ThreeDSServerTransID: s.ThreeDSServerTransID,
		AcsTransID:           res.AcsTransactionID,
		MessageType:          "CReq",
		MessageVersion:       s.MessageVersion,
		ChallengeWindowSize:  windowSizeCodes[s.ChallengeWindowSize],
	})
	if err != nil {
		return nil, errors.Wrap(err, "[challengeRendering] encode CReq")
	}
	rendering.AcsURL = res.AcsURL
	rendering.CReq = encoded
	rendering.ThreeDSSessionData = base64.RawURLEncoding.EncodeToString([]byte(s.ID))
	return rendering, nil
}

// methodInvocation describes the 3DS Method step, or a skip when there is no method URL.
func methodInvocation(pifdBaseURL, sessionID string, md *payerauth.ThreeDSMethodData) (*ps.MethodInvocation, error) {
	if md == nil || md.ThreeDSMethodURL == "" {
		return &ps.MethodInvocation{Skip: true}, nil
	}
	encoded, err := encodeJSON(methodData{
		ThreeDSServerTransID:         md.ThreeDSServerTransID,
		ThreeDSMethodNotificationURL: notificationURL(pifdBaseURL, sessionID, "threeDSMethodCompleted"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "[methodInvocation] encode method data")
	}
	return &ps.MethodInvocation{
		ThreeDSServerTransID: md.ThreeDSServerTransID,
		ThreeDSMethodURL:     md.ThreeDSMethodURL,
		ThreeDSMethodData:    encoded,
	}, nil
}

func notificationURL(pifdBaseURL, sessionID, event string) string {
	return fmt.Sprintf("%s/paymentSessions/%s/%s", pifdBaseURL, url.PathEscape(sessionID), event)
}

// ChallengeRedirectURL is where the browser goes once the session is terminal: the success URL
// when authentication was verified, the failure URL otherwise.
func ChallengeRedirectURL(s *ps.PaymentSession) (string, error) {
	if !s.ChallengeStatus.IsTerminal() {
		return "", ps.NewInvalidRequestData("session %s has not completed authentication", s.ID)
	}
	target := s.FailureURL
	if s.ChallengeStatus.IsAuthenticationVerified() {
		target = s.SuccessURL
	}
	if target == "" {
		return "", ps.NewInvalidRequestData("session %s has no redirect url", s.ID)
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", ps.NewInvalidRequestData("session %s redirect url is invalid", s.ID)
	}
	q := u.Query()
	q.Set("sessionId", s.ID)
	q.Set("status", string(s.ChallengeStatus))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
