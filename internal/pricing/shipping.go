package pricing

import "fmt"

// Region is the shipping destination class.
type Region string

const (
	RegionIsrael        Region = "israel"
	RegionInternational Region = "international"
)

// Method is the shipping speed.
type Method string

const (
	MethodStandard Method = "standard"
	MethodExpress  Method = "express"
)

// Estimate is a delivery window in business days.
type Estimate struct {
	MinDays int `json:"minDays"`
	MaxDays int `json:"maxDays"`
}

// ShippingResult is derived purely from the region/method tables.
type ShippingResult struct {
	Cost     int      `json:"cost"`
	Region   Region   `json:"region"`
	Method   Method   `json:"method"`
	Estimate Estimate `json:"estimate"`
}

var (
	shippingCosts = map[Region]map[Method]int{
		RegionIsrael:        {MethodStandard: 29, MethodExpress: 49},
		RegionInternational: {MethodStandard: 79, MethodExpress: 129},
	}
	shippingEstimates = map[Region]map[Method]Estimate{
		RegionIsrael:        {MethodStandard: {3, 5}, MethodExpress: {1, 2}},
		RegionInternational: {MethodStandard: {7, 14}, MethodExpress: {3, 5}},
	}
)

// Valid reports whether r is a known region.
func (r Region) Valid() bool { _, ok := shippingCosts[r]; return ok }

// Valid reports whether m is a known method.
func (m Method) Valid() bool { return m == MethodStandard || m == MethodExpress }

// ParseRegion converts boundary input; empty means israel.
func ParseRegion(v string) (Region, error) {
	if v == "" {
		return RegionIsrael, nil
	}
	r := Region(v)
	if !r.Valid() {
		return "", fmt.Errorf("unknown region %q", v)
	}
	return r, nil
}

// ParseMethod converts boundary input; empty means standard.
func ParseMethod(v string) (Method, error) {
	if v == "" {
		return MethodStandard, nil
	}
	m := Method(v)
	if !m.Valid() {
		return "", fmt.Errorf("unknown shipping method %q", v)
	}
	return m, nil
}

func normalize(region Region, method Method) (Region, Method) {
	if region == "" {
		region = RegionIsrael
	}
	if method == "" {
		method = MethodStandard
	}
	return region, method
}

// CalculateShipping returns cost and delivery estimate; empty arguments default to israel/standard.
func CalculateShipping(region Region, method Method) ShippingResult {
	region, method = normalize(region, method)
	return ShippingResult{
		Cost:     shippingCosts[region][method],
		Region:   region,
		Method:   method,
		Estimate: shippingEstimates[region][method],
	}
}

// ShippingEstimate formats the delivery window, e.g. "3-5 business days".
func ShippingEstimate(region Region, method Method) string {
	region, method = normalize(region, method)
	e := shippingEstimates[region][method]
	return fmt.Sprintf("%d-%d business days", e.MinDays, e.MaxDays)
}
