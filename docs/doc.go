// Package docs provides generated OpenAPI documentation.
//
// Bookflix API
//
//	@title			Bookflix API
//	@version		1.0
//	@description	Personal book library API for search, insights, chat, and background processing.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	API Support
//	@contact.url	https://github.com/vmishra/bookflix
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8000
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/bookflix/serve.go -o ./swagger --parseDependency --parseInternal
