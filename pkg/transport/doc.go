// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTP(S) client used to fetch SMP documents.

# TLS Configuration

TLS 1.3 is preferred with fallback to TLS 1.2:

	config := transport.DefaultHTTPSConfig()
	// MinTLSVersion: TLS 1.2
	// MaxTLSVersion: TLS 1.3

For TLS 1.2, the following cipher suites are recommended:
  - TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
  - TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
  - TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256

# Client Usage

	client := transport.NewHTTPSClient(&transport.HTTPSConfig{
	    RootCAs: certPool,
	    Timeout: 10 * time.Second,
	})

	body, err := client.Get(ctx, "https://smp.example.com/iso6523-actorid-upis%3A%3A9915%3Atest", "application/xml")

Non-200 responses are returned as *StatusError. Response bodies are limited
to MaxResponseBytes.

Peppol SMP servers publish over plain http; the TLS settings apply only to
https URLs. Authenticity of SMP responses comes from their XML signature,
see package smp.
*/
package transport
