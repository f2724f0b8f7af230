package wsfe

import (
	"encoding/xml"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// WSFEv1 endpoints
const (
	HomologationEndpoint = "https://wswhomo.afip.gov.ar/wsfev1/service.asmx"
	ProductionEndpoint   = "https://servicios1.afip.gov.ar/wsfev1/service.asmx"
)

// Namespace is the WSFEv1 target namespace; SOAP actions are Namespace + operation
const Namespace = "http://ar.gov.afip.dif.FEV1/"

func action(operation string) string {
	return Namespace + operation
}

// Auth is the authentication header every WSFEv1 operation carries
type Auth struct {
	Token string `xml:"Token"`
	Sign  string `xml:"Sign"`
	Cuit  string `xml:"Cuit"`
}

func authFor(t *model.AccessTicket, taxpayerID string) Auth {
	return Auth{Token: t.Token, Sign: t.Signature, Cuit: taxpayerID}
}

type feCompUltimoAutorizado struct {
	XMLName  xml.Name `xml:"http://ar.gov.afip.dif.FEV1/ FECompUltimoAutorizado"`
	Auth     Auth     `xml:"Auth"`
	PtoVta   int      `xml:"PtoVta"`
	CbteTipo int      `xml:"CbteTipo"`
}

type lastAuthorizedResult struct {
	PtoVta     int           `xml:"PtoVta"`
	CbteTipo   int           `xml:"CbteTipo"`
	CbteNro    *int64        `xml:"CbteNro"`
	FchProceso string        `xml:"FchProceso"`
	Errors     []wireMessage `xml:"Errors>Err"`
	Events     []wireMessage `xml:"Events>Evt"`
}

type feCAESolicitar struct {
	XMLName  xml.Name `xml:"http://ar.gov.afip.dif.FEV1/ FECAESolicitar"`
	Auth     Auth     `xml:"Auth"`
	FeCAEReq feCAEReq `xml:"FeCAEReq"`
}

type feCAEReq struct {
	FeCabReq feCabReq `xml:"FeCabReq"`
	FeDetReq feDetReq `xml:"FeDetReq"`
}

type feCabReq struct {
	CantReg  int `xml:"CantReg"`
	PtoVta   int `xml:"PtoVta"`
	CbteTipo int `xml:"CbteTipo"`
}

type feDetReq struct {
	Items []feCAEDetRequest `xml:"FECAEDetRequest"`
}

// feCAEDetRequest follows the WSDL element order; optional blocks are nil when empty
type feCAEDetRequest struct {
	Concepto               int        `xml:"Concepto"`
	DocTipo                int        `xml:"DocTipo"`
	DocNro                 string     `xml:"DocNro"`
	CbteDesde              int64      `xml:"CbteDesde"`
	CbteHasta              int64      `xml:"CbteHasta"`
	CbteFch                string     `xml:"CbteFch"`
	ImpTotal               string     `xml:"ImpTotal"`
	ImpTotConc             string     `xml:"ImpTotConc"`
	ImpNeto                string     `xml:"ImpNeto"`
	ImpOpEx                string     `xml:"ImpOpEx"`
	ImpTrib                string     `xml:"ImpTrib"`
	ImpIVA                 string     `xml:"ImpIVA"`
	FchServDesde           string     `xml:"FchServDesde,omitempty"`
	FchServHasta           string     `xml:"FchServHasta,omitempty"`
	FchVtoPago             string     `xml:"FchVtoPago,omitempty"`
	MonId                  string     `xml:"MonId"`
	MonCotiz               string     `xml:"MonCotiz"`
	CondicionIVAReceptorId int        `xml:"CondicionIVAReceptorId,omitempty"`
	CbtesAsoc              *cbtesAsoc `xml:"CbtesAsoc"`
	Tributos               *tributos  `xml:"Tributos"`
	Iva                    *iva       `xml:"Iva"`
}

type cbtesAsoc struct {
	Items []cbteAsoc `xml:"CbteAsoc"`
}

type cbteAsoc struct {
	Tipo    int    `xml:"Tipo"`
	PtoVta  int    `xml:"PtoVta"`
	Nro     int64  `xml:"Nro"`
	Cuit    string `xml:"Cuit,omitempty"`
	CbteFch string `xml:"CbteFch,omitempty"`
}

type tributos struct {
	Items []tributo `xml:"Tributo"`
}

type tributo struct {
	Id      int    `xml:"Id"`
	Desc    string `xml:"Desc,omitempty"`
	BaseImp string `xml:"BaseImp"`
	Alic    string `xml:"Alic"`
	Importe string `xml:"Importe"`
}

type iva struct {
	Items []alicIva `xml:"AlicIva"`
}

type alicIva struct {
	Id      int    `xml:"Id"`
	BaseImp string `xml:"BaseImp"`
	Importe string `xml:"Importe"`
}

type solicitarResult struct {
	FeCabResp struct {
		Cuit       string `xml:"Cuit"`
		PtoVta     int    `xml:"PtoVta"`
		CbteTipo   int    `xml:"CbteTipo"`
		FchProceso string `xml:"FchProceso"`
		CantReg    int    `xml:"CantReg"`
		Resultado  string `xml:"Resultado"`
		Reproceso  string `xml:"Reproceso"`
	} `xml:"FeCabResp"`
	FeDetResp []detResponse  `xml:"FeDetResp>FECAEDetResponse"`
	Events    []wireMessage `xml:"Events>Evt"`
	Errors    []wireMessage `xml:"Errors>Err"`
}

type detResponse struct {
	Concepto      int           `xml:"Concepto"`
	DocTipo       int           `xml:"DocTipo"`
	DocNro        string        `xml:"DocNro"`
	CbteDesde     int64         `xml:"CbteDesde"`
	CbteHasta     int64         `xml:"CbteHasta"`
	CbteFch       string        `xml:"CbteFch"`
	Resultado     string        `xml:"Resultado"`
	Observaciones []wireMessage `xml:"Observaciones>Obs"`
	CAE           string        `xml:"CAE"`
	CAEFchVto     string        `xml:"CAEFchVto"`
}

type wireMessage struct {
	Code int    `xml:"Code"`
	Msg  string `xml:"Msg"`
}

func toMessages(in []wireMessage) []model.Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]model.Message, 0, len(in))
	for _, m := range in {
		out = append(out, model.Message{Code: m.Code, Message: m.Msg})
	}
	return out
}
