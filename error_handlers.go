package goSession

import "errors"

// ErrorHandlers customize how recipe errors are written to the transport.
// Nil fields take the defaults: sessionExpiredStatusCode for Unauthorised,
// TryRefreshToken and TokenTheftDetected, missingGrantStatusCode for
// MissingGrant, each with a small JSON body naming the failure.
type ErrorHandlers struct {
	OnUnauthorised       func(message string, req Request, res Response) error
	OnTryRefreshToken    func(message string, req Request, res Response) error
	OnTokenTheftDetected func(sessionHandle, userID string, req Request, res Response) error
	OnMissingGrant       func(grantID string, req Request, res Response) error
}

// HandleError writes a recipe error to the response. Non-recipe errors
// (store or transport failures) are returned unchanged for the caller's own
// error handling.
func (r *Recipe) HandleError(err error, req Request, res Response) error {
	se, ok := AsSessionError(err)
	if !ok {
		return err
	}
	handlers := r.config.ErrorHandlers

	switch {
	case errors.Is(se, ErrUnauthorised):
		r.clearTokens(res)
		if handlers.OnUnauthorised != nil {
			return handlers.OnUnauthorised(se.Msg, req, res)
		}
		return r.writeErrorBody(res, r.config.SessionExpiredStatusCode, "unauthorised")

	case errors.Is(se, ErrTryRefreshToken):
		if handlers.OnTryRefreshToken != nil {
			return handlers.OnTryRefreshToken(se.Msg, req, res)
		}
		return r.writeErrorBody(res, r.config.SessionExpiredStatusCode, "try refresh token")

	case errors.Is(se, ErrTokenTheftDetected):
		if handlers.OnTokenTheftDetected != nil {
			return handlers.OnTokenTheftDetected(se.SessionHandle, se.UserID, req, res)
		}
		return r.writeErrorBody(res, r.config.SessionExpiredStatusCode, "token theft detected")

	case errors.Is(se, ErrMissingGrant):
		if handlers.OnMissingGrant != nil {
			return handlers.OnMissingGrant(se.GrantID, req, res)
		}
		res.SetStatusCode(r.config.MissingGrantStatusCode)
		return res.WriteJSON(JSONObject{
			"message": "missing grant",
			"grantId": se.GrantID,
		})

	default:
		return err
	}
}

func (r *Recipe) writeErrorBody(res Response, statusCode int, message string) error {
	res.SetStatusCode(statusCode)
	return res.WriteJSON(JSONObject{"message": message})
}
