package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupResourceRoutes injects the crud endpoints of a resource.
func (api *APIHandler) SetupResourceRoutes(router *httprouter.Router, m *MiddlewareMap, rr ResourceRouter) *httprouter.Router {
	path := rr.Path()
	router.POST(path, m.public(rr.Create))
	router.GET(path, m.public(rr.GetAll))
	router.GET(path+"/:id", m.public(rr.GetOne))
	router.PUT(path+"/:id", m.public(rr.Update))
	router.DELETE(path+"/:id", m.public(rr.Delete))
	return router
}
