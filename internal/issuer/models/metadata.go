package models

import "strings"

// IssuerMetadata is served at /.well-known/openid-credential-issuer.
type IssuerMetadata struct {
	CredentialIssuer     string                `json:"credential_issuer"`
	CredentialEndpoint   string                `json:"credential_endpoint"`
	TokenEndpoint        string                `json:"token_endpoint"`
	JWKSURI              string                `json:"jwks_uri,omitempty"`
	Display              []Display             `json:"display,omitempty"`
	CredentialsSupported []CredentialSupported `json:"credentials_supported"`
}

type Display struct {
	Name            string `json:"name"`
	Locale          string `json:"locale,omitempty"`
	Logo            *Logo  `json:"logo,omitempty"`
	BackgroundColor string `json:"background_color,omitempty"`
	TextColor       string `json:"text_color,omitempty"`
}

type Logo struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

type CredentialSupported struct {
	Format                               string    `json:"format"`
	ID                                   string    `json:"id"`
	Types                                []string  `json:"types"`
	CryptographicBindingMethodsSupported []string  `json:"cryptographic_binding_methods_supported"`
	CryptographicSuitesSupported         []string  `json:"cryptographic_suites_supported"`
	Display                              []Display `json:"display,omitempty"`
}

// MetadataParams is the configurable part of the issuer metadata.
type MetadataParams struct {
	BaseURL         string
	TokenPath       string
	IssuerName      string
	Locale          string
	CredentialID    string
	CredentialName  string
	LogoURL         string
	LogoAltText     string
	BackgroundColor string
	TextColor       string
}

// NewIssuerMetadata builds the metadata document for a single supported
// TitulacionDigital credential.
func NewIssuerMetadata(p MetadataParams) IssuerMetadata {
	base := strings.TrimRight(p.BaseURL, "/")
	tokenPath := p.TokenPath
	if tokenPath == "" {
		tokenPath = "/token"
	}

	display := Display{
		Name:            p.CredentialName,
		Locale:          p.Locale,
		BackgroundColor: p.BackgroundColor,
		TextColor:       p.TextColor,
	}
	if p.LogoURL != "" {
		display.Logo = &Logo{URL: p.LogoURL, AltText: p.LogoAltText}
	}

	md := IssuerMetadata{
		CredentialIssuer:   base,
		CredentialEndpoint: base + "/credentials",
		TokenEndpoint:      base + tokenPath,
		JWKSURI:            base + "/.well-known/jwks.json",
		CredentialsSupported: []CredentialSupported{{
			Format:                               FormatLDPVC,
			ID:                                   p.CredentialID,
			Types:                                []string{TypeVerifiableCredential, TypeTitulacionDigital},
			CryptographicBindingMethodsSupported: []string{"did"},
			CryptographicSuitesSupported:         []string{ProofTypeSecp256k1},
			Display:                              []Display{display},
		}},
	}
	if p.IssuerName != "" {
		md.Display = []Display{{Name: p.IssuerName, Locale: p.Locale}}
	}
	return md
}
