package main

// General API documentation for swaggo. Run `swag init -g cmd/lmserv/docs.go -o docs` to regenerate docs/.
//
// @title           lmserv API
// @version         1.0
// @description     Streams llama-cli output from a pool of interactive worker processes.
//
// @contact.name   lmserv maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
