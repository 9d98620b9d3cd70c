// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package pki builds TLS configurations for the observer's local HTTP
// dashboard, optionally requiring a client certificate when the
// dashboard is exposed beyond localhost.
package pki

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// NewDashboardTLSConfig loads a server certificate for the httpapi
// listener. No client authentication is required: this is the default
// mode, meant for a dashboard reachable only from the capturing machine
// or a trusted LAN.
func NewDashboardTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading dashboard certificate: %w", err)
	}
	return &tls.Config{
		MinVersion:   tls.VersionTLS13,
		Certificates: []tls.Certificate{cert},
	}, nil
}

// NewMutualTLSConfig builds on NewDashboardTLSConfig by additionally
// requiring and verifying a client certificate signed by caCertPath.
// Use this when the dashboard is exposed beyond a trusted network.
func NewMutualTLSConfig(caCertPath, certPath, keyPath string) (*tls.Config, error) {
	cfg, err := NewDashboardTLSConfig(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	caPool, err := loadCACertPool(caCertPath)
	if err != nil {
		return nil, err
	}
	cfg.ClientCAs = caPool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func loadCACertPool(caCertPath string) (*x509.CertPool, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("reading CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate from %s", caCertPath)
	}
	return pool, nil
}
