package server

func (s *Server) initRoutes() {
	s.RegisterRouteFunc("POST "+RouteRegister, ChainMiddleware(s.RegisterHandler(), s.APIMiddleware()...))

	// Two-step login: step 1 checks the password, step 2 the one-time code.
	s.RegisterRouteFunc("POST "+RouteLoginStep1, ChainMiddleware(s.LoginStep1Handler(), s.LoginMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteLoginStep2, ChainMiddleware(s.LoginStep2Handler(), s.LoginMiddleware()...))

	// Authenticated user surface
	s.RegisterRouteFunc("GET "+RouteProfile, ChainMiddleware(s.ProfileHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteSetupTOTP, ChainMiddleware(s.SetupTOTPHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteSetupSMS, ChainMiddleware(s.SetupSMSHandler(), s.AuthedMiddleware()...))

	// Company records
	s.RegisterRouteFunc("GET "+RouteCompanies, ChainMiddleware(s.CompanyListHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("POST "+RouteCompanies, ChainMiddleware(s.CompanyCreateHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCompanyByPID, ChainMiddleware(s.CompanyGetHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("PATCH "+RouteCompanyByPID, ChainMiddleware(s.CompanyPatchHandler(), s.AuthedMiddleware()...))
	s.RegisterRouteFunc("GET "+RouteCompanyChangeLog, ChainMiddleware(s.CompanyChangeLogHandler(), s.AuthedMiddleware()...))
}
