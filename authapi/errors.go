package authapi

// InvalidEmail is returned by SignInOTP when the backend rejects the email
// address itself (HTTP 400/422).
type InvalidEmail struct{ Detail string }

func (e InvalidEmail) Error() string { return "invalid email: " + e.Detail }

// AuthCodeFail is returned by SignInOTP for any failure other than an
// invalid email (network error, 5xx, unexpected body).
type AuthCodeFail struct{ Detail string }

func (e AuthCodeFail) Error() string { return "failed to send auth code: " + e.Detail }

// LoginFail is returned by VerifyOTP/RefreshToken when the backend rejects
// the code or refresh token.
type LoginFail struct{ Detail string }

func (e LoginFail) Error() string { return "login failed: " + e.Detail }
