//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// accounts store interfaces, for deployments on Google Cloud Platform.
//
// # Datastore Kinds
//
// The package uses the following Datastore kinds:
//   - User: user accounts with their linked SSO subject and Telegram id
//   - EmailFlow: email verification flows and their lifecycle status
//
// # Namespacing
//
// All stores support Datastore namespaces. Pass a namespace when
// creating stores to isolate data between environments:
//
//	userStore := gae.NewUserStore(client, "staging")
//	flowStore := gae.NewFlowStore(client, "staging")
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	userStore := gae.NewUserStore(client, "") // default namespace
//	flowStore := gae.NewFlowStore(client, "")
package gae
