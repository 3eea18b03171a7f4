package httpapi

import (
	"net/http"

	"ecobridge/internal/models"

	"github.com/shopspring/decimal"
)

type chargeResponse struct {
	Amount string `json:"amount"`
	Charge string `json:"charge"`
	Gross  string `json:"gross"`
}

type netResponse struct {
	Gross  string `json:"gross"`
	Net    string `json:"net"`
	Charge string `json:"charge"`
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(models.MoneyPlaces)
}

func (s *server) handleFeeCharge(w http.ResponseWriter, r *http.Request) {
	amount, err := parseAmountParam(r, "amount")
	if err != nil {
		s.writeError(w, err)
		return
	}
	charge := s.deps.Fees.ChargeFor(r.Context(), amount)
	writeJSON(w, http.StatusOK, chargeResponse{
		Amount: fixed(amount),
		Charge: fixed(charge),
		Gross:  fixed(amount.Add(charge)),
	})
}

func (s *server) handleFeeNet(w http.ResponseWriter, r *http.Request) {
	gross, err := parseAmountParam(r, "gross")
	if err != nil {
		s.writeError(w, err)
		return
	}
	net, charge := s.deps.Fees.NetAndChargeForGross(r.Context(), gross)
	writeJSON(w, http.StatusOK, netResponse{Gross: fixed(gross), Net: fixed(net), Charge: fixed(charge)})
}

func (s *server) handleFeeGross(w http.ResponseWriter, r *http.Request) {
	net, err := parseAmountParam(r, "net")
	if err != nil {
		s.writeError(w, err)
		return
	}
	gross, charge := s.deps.Fees.GrossForNet(r.Context(), net)
	writeJSON(w, http.StatusOK, netResponse{Gross: fixed(gross), Net: fixed(net), Charge: fixed(charge)})
}
