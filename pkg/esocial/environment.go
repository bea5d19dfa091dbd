package esocial

import (
	"fmt"
	"strings"
)

// Environment selects the eSocial reception service.
type Environment string

const (
	// EnvironmentProduction submits legally binding events (tpAmb 1).
	EnvironmentProduction Environment = "production"
	// EnvironmentRestricted is the restricted production test area (tpAmb 2).
	EnvironmentRestricted Environment = "restricted"
)

const (
	EndpointProduction = "https://webservices.envio.esocial.gov.br/servicos/empregador/enviarloteeventos/WsEnviarLoteEventos.svc"
	EndpointRestricted = "https://webservices.producaorestrita.esocial.gov.br/servicos/empregador/enviarloteeventos/WsEnviarLoteEventos.svc"
)

// ParseEnvironment accepts the environment names and the tpAmb codes.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "production", "producao", "1":
		return EnvironmentProduction, nil
	case "", "restricted", "producaorestrita", "2":
		return EnvironmentRestricted, nil
	default:
		return "", fmt.Errorf("unknown eSocial environment %q", s)
	}
}

// Endpoint returns the lot reception URL.
func (e Environment) Endpoint() string {
	if e == EnvironmentProduction {
		return EndpointProduction
	}
	return EndpointRestricted
}

// TpAmb returns the ideEvento/tpAmb code of the environment.
func (e Environment) TpAmb() string {
	if e == EnvironmentProduction {
		return "1"
	}
	return "2"
}
