package main

// General API documentation for swaggo. Run `swag init` to regenerate docs.
//
// @title           modelsyncd API
// @version         1.0
// @description     Read-only projection and lifecycle actions for locally synchronized model state.
//
// @BasePath  /
//
// @schemes http
