// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gobdxl implements the discovery and trust core of a Peppol/BDXL
client: locating the SMP that publishes a participant's capabilities and
deciding whether the certificates found along the way can be trusted.

# Overview

Before an access point can send a business document it has to find the
receiver. go-bdxl performs the lookup chain:

 1. Canonicalize the participant identifier
 2. Hash it into a DNS name below the network's discovery zone
 3. Resolve the NAPTR records of that name to the SMP base URL
 4. Fetch and verify the signed service metadata from the SMP
 5. Select an endpoint and check the SMP and access point certificates
    against the network's trust anchors

Results are cached per identifier, zone and anchor set, with concurrent
requests for the same key collapsed into a single lookup.

# Specifications Implemented

  - OASIS Business Document Metadata Service Location Version 1.0 (BDXL)
  - OASIS Service Metadata Publishing Version 1.0 and 2.0 (SMP)
  - Peppol Policy for use of Identifiers 4.x
  - Peppol SML and SMP specifications (NAPTR and CNAME layouts)
  - RFC 3403 NAPTR and RFC 4848 U-NAPTR

# Package Structure

	github.com/sirosfoundation/go-bdxl/pkg/identifier - Identifier canonicalization
	github.com/sirosfoundation/go-bdxl/pkg/naming     - Hash-based DNS name builder
	github.com/sirosfoundation/go-bdxl/pkg/naptr      - NAPTR resolution to SMP URLs
	github.com/sirosfoundation/go-bdxl/pkg/smp        - SMP client and signature verification
	github.com/sirosfoundation/go-bdxl/pkg/trust      - Certificate trust anchor checks
	github.com/sirosfoundation/go-bdxl/pkg/cache      - Single-flight TTL cache
	github.com/sirosfoundation/go-bdxl/pkg/discovery  - End-to-end participant discovery
	github.com/sirosfoundation/go-bdxl/pkg/transport  - HTTPS transport with TLS 1.2/1.3

# Quick Start

	client, err := discovery.NewClient()
	if err != nil {
	    return err
	}

	network := discovery.Network{
	    Zone:       naming.PeppolNAPTR("production", naming.ZonePeppolProduction),
	    SMPAnchors: smpAnchors,
	    APAnchors:  apAnchors,
	}

	participant, _ := identifier.Canonicalize("iso6523-actorid-upis", "0088:5798000000001")
	result, err := client.DiscoverEndpoint(ctx, participant, docType, "", network)
	if err != nil {
	    return err
	}
	if !result.Trusted() {
	    // inspect result.SMPTrust and result.APTrust
	}

# License

BSD-2-Clause License
*/
package gobdxl
