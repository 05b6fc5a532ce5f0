package api

import "time"

// AdSetListFields is the field selection requested when listing ad sets.
const AdSetListFields = "id,name,campaign_id,status,daily_budget,lifetime_budget,targeting,bid_amount,bid_strategy,optimization_goal,billing_event,start_time,end_time,created_time,updated_time"

// AdSetDetailFields extends AdSetListFields for single ad set reads.
const AdSetDetailFields = AdSetListFields + ",attribution_spec,destination_type,promoted_object,pacing_type,budget_remaining"

// DefaultLimit applies when get_adsets receives no usable limit.
const DefaultLimit = 10

// Request body for get_adsets
type GetAdSetsRequest struct {
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token, the cached token is used when omitted"`
	AccountID   string `json:"account_id,omitempty" jsonschema:"Meta Ads account ID in the form act_XXXXXXXXX"`
	Limit       any    `json:"limit,omitempty" jsonschema:"Maximum number of ad sets to return, default 10"`
	CampaignID  string `json:"campaign_id,omitempty" jsonschema:"Only return ad sets of this campaign"`
}

// Request body for get_adset_details. Args is the positional form of AdSetID.
type GetAdSetDetailsRequest struct {
	AdSetID     string `json:"adset_id,omitempty" jsonschema:"Meta Ads ad set ID"`
	Args        string `json:"args,omitempty" jsonschema:"Ad set ID passed positionally"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token, the cached token is used when omitted"`
}

// ID returns the ad set id from either field.
func (r GetAdSetDetailsRequest) ID() string {
	if r.AdSetID != "" {
		return r.AdSetID
	}
	return r.Args
}

// Request body for update_adset. Kwargs is either a JSON object encoded as a
// string or the object itself.
type UpdateAdSetRequest struct {
	AdSetID     string `json:"adset_id,omitempty" jsonschema:"Meta Ads ad set ID"`
	Args        string `json:"args,omitempty" jsonschema:"Ad set ID passed positionally"`
	Kwargs      any    `json:"kwargs,omitempty" jsonschema:"Update parameters: bid_strategy, bid_amount, frequency_control_specs, status"`
	AccessToken string `json:"access_token,omitempty" jsonschema:"Meta API access token, the cached token is used when omitted"`
}

// ID returns the ad set id from either field.
func (r UpdateAdSetRequest) ID() string {
	if r.AdSetID != "" {
		return r.AdSetID
	}
	return r.Args
}

// Response body for update_adset
type UpdateAdSetResponse struct {
	Message            string         `json:"message"`
	ConfirmationID     string         `json:"confirmation_id"`
	ConfirmationURL    string         `json:"confirmation_url"`
	MarkdownLink       string         `json:"markdown_link"`
	CurrentDetails     any            `json:"current_details"`
	ProposedChanges    map[string]any `json:"proposed_changes"`
	ExpiresAt          time.Time      `json:"expires_at"`
	InstructionsForLLM string         `json:"instructions_for_llm"`
	Note               string         `json:"note"`
}

// ErrorResponse is the uniform error shape of every tool.
type ErrorResponse struct {
	Error string `json:"error"`
}
