//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the accounts store
// interfaces. It supports any database that GORM supports (PostgreSQL,
// MySQL, SQLite, etc.) and is suitable for deployments that want account
// and email-flow state in a relational database.
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - users: user accounts with their linked SSO subject and Telegram id
//   - email_flows: email verification flows and their lifecycle status
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	gormstore.AutoMigrate(db)
//	userStore := gormstore.NewUserStore(db)
//	flowStore := gormstore.NewFlowStore(db)
package gorm
