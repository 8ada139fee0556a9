package server

const (
	RouteRegister   = "/register"
	RouteProfile    = "/profile"
	RouteLoginStep1 = "/login/step1"
	RouteLoginStep2 = "/login/step2"
	RouteSetupTOTP  = "/setup-totp"
	RouteSetupSMS   = "/setup-sms"

	RouteCompanies        = "/companies"
	RouteCompanyByPID     = "/companies/{pid}"
	RouteCompanyChangeLog = "/companies/{pid}/changelog"
)
