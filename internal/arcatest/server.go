// Package arcatest runs an in-process fake of the authority's SOAP services for tests.
package arcatest

import (
	"fmt"
	"html"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/beevik/etree"
)

// Operation names as they appear in the request body
const (
	OpLogin          = "loginCms"
	OpLastAuthorized = "FECompUltimoAutorizado"
	OpSolicitar      = "FECAESolicitar"
	OpPersona        = "getPersona_v2"
)

// DefaultCAE is the authorization code approved submissions receive
const DefaultCAE = "75123456789012"

// Server is a fake WSAA + WSFEv1 + padrón endpoint. The same URL serves every operation.
type Server struct {
	URL string

	srv *httptest.Server

	mu           sync.Mutex
	calls        map[string]int
	bodies       map[string][]string
	lastNumber   int64
	lastErrors   string
	solicitar    string
	persona      string
	loginResults []string
}

// NewServer starts a fake that approves everything and reports last number 0
func NewServer() *Server {
	s := &Server{
		calls:  make(map[string]int),
		bodies: make(map[string][]string),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = s.srv.URL
	return s
}

// Close shuts the server down
func (s *Server) Close() {
	s.srv.Close()
}

// SetLastAuthorized sets the CbteNro reported by FECompUltimoAutorizado
func (s *Server) SetLastAuthorized(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastNumber = n
}

// SetLastAuthorizedErrors makes FECompUltimoAutorizado answer with an Errors block
func (s *Server) SetLastAuthorizedErrors(inner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErrors = inner
}

// SetSolicitarResult replaces the content of FECAESolicitarResult
func (s *Server) SetSolicitarResult(inner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.solicitar = inner
}

// SetPersonaResult replaces the content of personaReturn; an empty string restores the default
func (s *Server) SetPersonaResult(inner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persona = inner
}

// QueueLoginFaults makes the next logins fail with the alreadyAuthenticated fault
func (s *Server) QueueLoginFaults(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.loginResults = append(s.loginResults, "alreadyAuthenticated")
	}
}

// Calls returns how many times op was invoked
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// LastBody returns the most recent request body for op
func (s *Server) LastBody(op string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	bodies := s.bodies[op]
	if len(bodies) == 0 {
		return ""
	}
	return bodies[len(bodies)-1]
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	body := string(raw)

	op := operation(body)
	s.mu.Lock()
	s.calls[op]++
	s.bodies[op] = append(s.bodies[op], body)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/xml; charset=utf-8")

	switch op {
	case OpLogin:
		s.login(w)
	case OpLastAuthorized:
		s.lastAuthorized(w, body)
	case OpSolicitar:
		s.solicitarResponse(w, body)
	case OpPersona:
		s.personaResponse(w, body)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func operation(body string) string {
	for _, op := range []string{OpLogin, OpLastAuthorized, OpSolicitar, OpPersona} {
		if strings.Contains(body, "<"+op) || strings.Contains(body, ":"+op) {
			return op
		}
	}
	return ""
}

func (s *Server) login(w http.ResponseWriter) {
	s.mu.Lock()
	var next string
	if len(s.loginResults) > 0 {
		next, s.loginResults = s.loginResults[0], s.loginResults[1:]
	}
	n := s.calls[OpLogin]
	s.mu.Unlock()

	if next == "alreadyAuthenticated" {
		w.WriteHeader(http.StatusInternalServerError)
		writeEnvelope(w, `<soap:Fault><faultcode xmlns:ns1="http://xml.apache.org/axis/">ns1:coe.alreadyAuthenticated</faultcode>`+
			`<faultstring>El CEE ya posee un TA valido para el acceso al WSN solicitado</faultstring></soap:Fault>`)
		return
	}

	now := time.Now()
	ticket := TicketResponse(fmt.Sprintf("token-%d", n), now, now.Add(12*time.Hour))
	writeEnvelope(w, `<loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov"><loginCmsReturn>`+
		html.EscapeString(ticket)+`</loginCmsReturn></loginCmsResponse>`)
}

func (s *Server) lastAuthorized(w http.ResponseWriter, body string) {
	s.mu.Lock()
	last, errs := s.lastNumber, s.lastErrors
	s.mu.Unlock()

	req := parse(body)
	inner := fmt.Sprintf("<PtoVta>%s</PtoVta><CbteTipo>%s</CbteTipo>", text(req, "PtoVta"), text(req, "CbteTipo"))
	if errs != "" {
		inner += errs
	} else {
		inner += fmt.Sprintf("<CbteNro>%d</CbteNro>", last)
	}
	writeEnvelope(w, `<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompUltimoAutorizadoResult>`+
		inner+`</FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`)
}

func (s *Server) solicitarResponse(w http.ResponseWriter, body string) {
	s.mu.Lock()
	inner := s.solicitar
	s.mu.Unlock()

	if inner == "" {
		req := parse(body)
		inner = ApprovedResult(text(req, "PtoVta"), text(req, "CbteTipo"), text(req, "CbteDesde"))
	}
	writeEnvelope(w, `<FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult>`+
		inner+`</FECAESolicitarResult></FECAESolicitarResponse>`)
}

func (s *Server) personaResponse(w http.ResponseWriter, body string) {
	s.mu.Lock()
	inner := s.persona
	s.mu.Unlock()

	if inner == "" {
		id := text(parse(body), "idPersona")
		inner = fmt.Sprintf(`<datosGenerales><idPersona>%s</idPersona><estadoClave>ACTIVO</estadoClave>`+
			`<razonSocial>EMPRESA DE PRUEBA SA</razonSocial><tipoPersona>JURIDICA</tipoPersona></datosGenerales>`, id)
	}
	writeEnvelope(w, `<ns2:getPersona_v2Response xmlns:ns2="http://a5.soap.ws.server.puc.sr/"><personaReturn>`+
		inner+`</personaReturn></ns2:getPersona_v2Response>`)
}

// ApprovedResult is a FECAESolicitarResult body approving one document
func ApprovedResult(pos, docType, number string) string {
	expiry := time.Now().AddDate(0, 0, 10).Format("20060102")
	return fmt.Sprintf(`<FeCabResp><Cuit>20111111112</Cuit><PtoVta>%s</PtoVta><CbteTipo>%s</CbteTipo>`+
		`<FchProceso>20260301120000</FchProceso><CantReg>1</CantReg><Resultado>A</Resultado><Reproceso>N</Reproceso></FeCabResp>`+
		`<FeDetResp><FECAEDetResponse><Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>20111111112</DocNro>`+
		`<CbteDesde>%s</CbteDesde><CbteHasta>%s</CbteHasta><CbteFch>20260301</CbteFch><Resultado>A</Resultado>`+
		`<CAE>%s</CAE><CAEFchVto>%s</CAEFchVto></FECAEDetResponse></FeDetResp>`,
		pos, docType, number, number, DefaultCAE, expiry)
}

// RejectedResult is a FECAESolicitarResult body rejecting one document with one observation
func RejectedResult(obsCode int, obsMsg string) string {
	return fmt.Sprintf(`<FeCabResp><Cuit>20111111112</Cuit><PtoVta>12</PtoVta><CbteTipo>1</CbteTipo>`+
		`<FchProceso>20260301120000</FchProceso><CantReg>1</CantReg><Resultado>R</Resultado><Reproceso>N</Reproceso></FeCabResp>`+
		`<FeDetResp><FECAEDetResponse><Concepto>1</Concepto><DocTipo>80</DocTipo><DocNro>20111111112</DocNro>`+
		`<CbteDesde>46</CbteDesde><CbteHasta>46</CbteHasta><CbteFch>20260301</CbteFch><Resultado>R</Resultado>`+
		`<Observaciones><Obs><Code>%d</Code><Msg>%s</Msg></Obs></Observaciones>`+
		`<CAE></CAE><CAEFchVto></CAEFchVto></FECAEDetResponse></FeDetResp>`, obsCode, html.EscapeString(obsMsg))
}

// TicketResponse renders a loginTicketResponse document
func TicketResponse(token string, generated, expires time.Time) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<loginTicketResponse version="1.0"><header><source>CN=wsaahomo, O=AFIP, C=AR, SERIALNUMBER=CUIT 33693450239</source>`+
		`<destination>SERIALNUMBER=CUIT 20111111112, CN=facturacion</destination><uniqueId>1</uniqueId>`+
		`<generationTime>%s</generationTime><expirationTime>%s</expirationTime></header>`+
		`<credentials><token>%s</token><sign>sign-%s</sign></credentials></loginTicketResponse>`,
		generated.Format(time.RFC3339), expires.Format(time.RFC3339), token, token)
}

func writeEnvelope(w io.Writer, inner string) {
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>%s</soap:Body></soap:Envelope>`, inner)
}

func parse(body string) *etree.Element {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(body); err != nil {
		return nil
	}
	return doc.Root()
}

// text returns the first descendant's text by local name
func text(root *etree.Element, tag string) string {
	if root == nil {
		return ""
	}
	if root.Tag == tag {
		return root.Text()
	}
	for _, child := range root.ChildElements() {
		if v := text(child, tag); v != "" {
			return v
		}
	}
	return ""
}
