// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

// Package discovery implements eDelivery BDXL (Business Document Exchange Location)
// dynamic metadata discovery with certificate trust evaluation.
//
// It ties together the building blocks of the module:
//
//   - identifier: canonical participant, document type and process identifiers
//   - naming: the DNS name derived from an identifier for a zone
//   - naptr: U-NAPTR resolution of that name to the SMP URL
//   - smp: retrieval and signature validation of service metadata
//   - trust: evaluation of the SMP and access point certificates
//   - cache: TTL caching with one resolution per key in flight
//
// # Specifications
//
// This implementation supports:
//   - eDelivery BDXL 2.0 (December 2024)
//   - eDelivery BDXL 1.6 (May 2018) - for backward compatibility
//   - the PEPPOL SML/SMP naming layouts
//
// # Discovery Process
//
//  1. The participant identifier is canonicalized and hashed into a DNS name
//     under the zone of the Network.
//  2. A U-NAPTR lookup on that name yields the SMP URL.
//  3. The SMP is queried for the signed service metadata of the document type.
//  4. An active endpoint is selected by process and transport profile.
//  5. The metadata signing certificate is checked against the SMP anchors and
//     the endpoint certificate against the access point anchors.
//
// # Usage
//
//	network := discovery.Network{
//	    Zone:       naming.PeppolNAPTR("production", naming.ZonePeppolProduction),
//	    SMPAnchors: smpAnchors,
//	    APAnchors:  apAnchors,
//	}
//
//	client, err := discovery.NewClient(discovery.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := client.DiscoverEndpoint(ctx, participant, docType, processID, network)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Trusted() {
//	    log.Fatalf("untrusted endpoint: SMP %s, AP %s", result.SMPTrust.Verdict, result.APTrust.Verdict)
//	}
//
// # Service Types
//
// The package supports both SMP 1.0 and SMP 2.0 service types in U-NAPTR records:
//   - "Meta:SMP" - OASIS SMP 1.0
//   - "oasis-bdxr-smp-2" - OASIS SMP 2.0
//
// # References
//
//   - eDelivery BDXL 2.0: https://ec.europa.eu/digital-building-blocks/sites/spaces/DIGITAL/pages/843612547/eDelivery+BDXL+-+2.0
//   - eDelivery SMP: https://ec.europa.eu/digital-building-blocks/sites/spaces/DIGITAL/pages/467117987/eDelivery+SMP
//   - OASIS BDX-Location 1.0: http://docs.oasis-open.org/bdxr/BDX-Location/v1.0/
//   - OASIS SMP 2.0: https://docs.oasis-open.org/bdxr/bdx-smp/v2.0/
//   - RFC 4848: https://www.rfc-editor.org/rfc/rfc4848.html
package discovery
