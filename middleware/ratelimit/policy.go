package ratelimit

import (
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// UnknownIdentifier é usado quando nenhum header de proxy traz o cliente.
const UnknownIdentifier = "unknown"

// DefaultRouteLabel rotula requisições de API sem regra específica.
const DefaultRouteLabel = "default"

// DefaultIdentifierHeaders em ordem de prioridade.
var DefaultIdentifierHeaders = []string{"X-Forwarded-For", "X-Real-IP", "CF-Connecting-IP"}

// Route associa um prefixo de path a uma regra.
type Route struct {
	Prefix string
	Rule   domain.Rule
}

// Policy mapeia uma requisição para (identificador, regra). Não guarda estado.
type Policy struct {
	// APIPrefix delimita o namespace limitado; o resto (páginas, assets) é isento.
	// Vazio limita todos os paths.
	APIPrefix string
	Default   domain.Rule
	Routes    []Route
	// Exempt lista prefixos nunca limitados (ex: webhook assinado do Stripe).
	Exempt            []string
	IdentifierHeaders []string
}

// DefaultPolicy reproduz a tabela de produção.
func DefaultPolicy() Policy {
	return Policy{
		APIPrefix: "/api/",
		Default:   domain.Rule{MaxRequests: 30, Window: time.Minute},
		Routes: []Route{
			{Prefix: "/api/checkout", Rule: domain.Rule{MaxRequests: 10, Window: time.Minute}},
			{Prefix: "/api/ai-search", Rule: domain.Rule{MaxRequests: 25, Window: time.Minute}},
		},
		Exempt:            []string{"/api/webhooks/stripe"},
		IdentifierHeaders: DefaultIdentifierHeaders,
	}
}

// Resolution é o resultado de Policy.Resolve para um path não isento.
type Resolution struct {
	Identifier string
	Route      string
	Rule       domain.Rule
}

// Key separa baldes por rota, para que o limite de checkout não seja
// consumido por tráfego de busca do mesmo cliente.
func (r Resolution) Key() domain.Key {
	return domain.Key(r.Route + ":" + r.Identifier)
}

func (p Policy) Validate() error {
	var errs []error
	if !p.Default.Valid() {
		errs = append(errs, fmt.Errorf("default rule must have positive values, got max=%d window=%s", p.Default.MaxRequests, p.Default.Window))
	}
	for _, rt := range p.Routes {
		if strings.TrimSpace(rt.Prefix) == "" {
			errs = append(errs, errors.New("route prefix must not be empty"))
			continue
		}
		if !rt.Rule.Valid() {
			errs = append(errs, fmt.Errorf("route %s must have positive values, got max=%d window=%s", rt.Prefix, rt.Rule.MaxRequests, rt.Rule.Window))
		}
	}
	return errors.Join(errs...)
}

// Exempted informa se o path passa sem rate limit. O path é normalizado antes.
func (p Policy) Exempted(urlPath string) bool {
	return p.exempted(cleanPath(urlPath))
}

func (p Policy) exempted(clean string) bool {
	if p.APIPrefix != "" && !matchPrefix(clean, p.APIPrefix) {
		return true
	}
	for _, e := range p.Exempt {
		if matchPrefix(clean, e) {
			return true
		}
	}
	return false
}

// Resolve retorna false quando o path é isento.
func (p Policy) Resolve(r *http.Request) (Resolution, bool) {
	clean := cleanPath(r.URL.Path)
	if p.exempted(clean) {
		return Resolution{}, false
	}

	res := Resolution{Identifier: p.Identify(r), Route: DefaultRouteLabel, Rule: p.Default}
	longest := -1
	for _, rt := range p.Routes {
		if len(rt.Prefix) > longest && matchPrefix(clean, rt.Prefix) {
			longest = len(rt.Prefix)
			res.Route = rt.Prefix
			res.Rule = rt.Rule
		}
	}
	return res, true
}

// Identify pega o primeiro token (antes da vírgula) do primeiro header presente.
// O valor é usado como veio: sem validação de IP nem normalização de IPv4 mapeado.
func (p Policy) Identify(r *http.Request) string {
	headers := p.IdentifierHeaders
	if len(headers) == 0 {
		headers = DefaultIdentifierHeaders
	}
	for _, h := range headers {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" {
			continue
		}
		first, _, _ := strings.Cut(v, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return UnknownIdentifier
}

// cleanPath resolve ".", ".." e barras repetidas como o upstream fará, para que
// "/api/webhooks/stripe/../../checkout" caia na regra de checkout.
// Barra final é mantida.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	c := path.Clean(p)
	if c != "/" && strings.HasSuffix(p, "/") {
		c += "/"
	}
	return c
}

// matchPrefix respeita fronteira de segmento: "/api/checkout" casa com
// "/api/checkout/session" mas não com "/api/checkouts".
func matchPrefix(path, prefix string) bool {
	base := strings.TrimSuffix(prefix, "/")
	if base == "" {
		return true
	}
	return path == base || strings.HasPrefix(path, base+"/")
}
