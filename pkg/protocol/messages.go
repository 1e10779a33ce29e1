package protocol

// Empty is the payload or response of kinds that carry nothing.
type Empty struct{}

// Account

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AccountResponse struct {
	Account AccountSnippet `json:"account"`
	// Token authorizes the REST endpoints for the same account.
	Token string `json:"token"`
}

var (
	Login         = DefinePrivateRequest[Credentials, AccountResponse]("login", Anonymous())
	AccountCreate = DefinePrivateRequest[Credentials, AccountResponse]("accountCreate", Anonymous())
)

// Campaign

type CampaignRef struct {
	ID string `json:"id"`
}

type CampaignCreatePayload struct {
	Name string `json:"name"`
}

type CampaignReorderPayload struct {
	CampaignIDs []string `json:"campaignIds"`
}

type CampaignEditPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CampaignListResponse struct {
	Campaigns []CampaignCardSnippet `json:"campaigns"`
}

type TokenTemplateCreatePayload struct {
	Name     string `json:"name"`
	AvatarID string `json:"avatarId,omitempty"`
}

type TokenTemplateDeletePayload struct {
	TokenTemplateID string `json:"tokenTemplateId"`
}

type BoardSelectPayload struct {
	BoardID string `json:"boardId"`
}

var (
	CampaignList        = DefinePrivateRequest[Empty, CampaignListResponse]("campaignList")
	CampaignCreate      = DefinePrivateRequest[CampaignCreatePayload, CampaignSnippet]("campaignCreate")
	CampaignDelete      = DefinePrivateRequest[CampaignRef, Empty]("campaignDelete")
	CampaignReorder     = DefinePrivateRequest[CampaignReorderPayload, Empty]("campaignReorder")
	CampaignEdit        = DefinePrivateRequest[CampaignEditPayload, CampaignCardSnippet]("campaignEdit")
	CampaignHost        = DefinePrivateRequest[CampaignRef, CampaignSnippet]("campaignHost")
	CampaignJoin        = DefinePrivateRequest[CampaignRef, CampaignSnippet]("campaignJoin")
	TokenTemplateCreate = DefinePrivateRequest[TokenTemplateCreatePayload, TokenTemplateSnippet]("tokenTemplateCreate")
	TokenTemplateDelete = DefinePrivateRequest[TokenTemplateDeletePayload, Empty]("tokenTemplateDelete")

	// BoardSelect pushes the updated campaign to everyone else in it.
	BoardSelect = DefineRequestWithPublicResponse[BoardSelectPayload, CampaignSnippet]("boardSelect")
)

// Tokens

type TokenCreatePayload struct {
	TokenDefinition string   `json:"tokenDefinition"`
	Position        Position `json:"position"`
}

type TokenCreateResponse struct {
	Token TokenSnippet `json:"token"`
}

type TokenMovePayload struct {
	ID       string   `json:"id"`
	Position Position `json:"position"`
}

var (
	TokenCreate = DefineRequestWithPublicResponse[TokenCreatePayload, TokenCreateResponse]("tokenCreate")
	TokenMove   = DefineSendAndForward[TokenMovePayload]("tokenMove")
)
