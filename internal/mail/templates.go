package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strconv"
	"time"
)

const (
	KindAssociationInvite = "association_invite"
	KindHypertensionAlert = "hypertension_alert"
	KindPasswordReset     = "password_reset"
)

var (
	inviteTmpl = template.Must(template.New("invite").Parse(`
<p>Olá, {{.CaregiverName}}!</p>
<p>{{.PatientName}} quer compartilhar as medições de pressão arterial com você no PressioTrack.</p>
<p>Para aceitar, clique no link abaixo. Ele expira em {{.Expiry}}:</p>
<p><a href="{{.Link}}">Confirmar associação</a></p>
<p>Se você não conhece este paciente, ignore este email.</p>
`))

	alertTmpl = template.Must(template.New("alert").Parse(`
<p>Olá, {{.Name}}.</p>
<p>Sua medição mais recente ({{.Systolic}}/{{.Diastolic}} mmHg) está acima da sua pressão normal.</p>
<p>Repita a medição em repouso e, se o valor persistir, procure orientação médica.</p>
`))

	resetTmpl = template.Must(template.New("reset").Parse(`
<p>Você solicitou uma redefinição de senha.</p>
<p>Clique no link abaixo para redefinir sua senha. Este link expira em {{.Expiry}}:</p>
<p><a href="{{.Link}}">Redefinir Senha</a></p>
<p>Se você não solicitou isso, ignore este email.</p>
`))
)

// Composer builds messages whose links point at the frontend.
type Composer struct {
	frontendURL string
	inviteTTL   time.Duration
	resetTTL    time.Duration
}

// NewComposer takes the lifetimes of invitation and reset links so the
// emails state when they expire.
func NewComposer(frontendURL string, inviteTTL, resetTTL time.Duration) *Composer {
	return &Composer{frontendURL: frontendURL, inviteTTL: inviteTTL, resetTTL: resetTTL}
}

// expiry renders a link lifetime in Portuguese, in hours when it is a whole
// number of hours and in minutes otherwise.
func expiry(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		if h := int(d / time.Hour); h > 1 {
			return strconv.Itoa(h) + " horas"
		}
		return "1 hora"
	}

	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minuto"
	}
	return strconv.Itoa(m) + " minutos"
}

func (c *Composer) link(path string, query url.Values) string {
	return c.frontendURL + path + "?" + query.Encode()
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("mail.render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}

type Invite struct {
	CaregiverEmail string
	CaregiverName  string
	CaregiverID    int64
	PatientName    string
	Token          string
}

func (c *Composer) Invitation(in Invite) (Message, error) {
	link := c.link("/confirmar-associacao", url.Values{
		"token":      {in.Token},
		"cuidadorId": {strconv.FormatInt(in.CaregiverID, 10)},
	})

	body, err := render(inviteTmpl, struct {
		CaregiverName string
		PatientName   string
		Link          string
		Expiry        string
	}{in.CaregiverName, in.PatientName, link, expiry(c.inviteTTL)})
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      in.CaregiverEmail,
		Subject: "Convite para acompanhar um paciente",
		HTML:    body,
	}, nil
}

func (c *Composer) HypertensionAlert(to, name string, systolic, diastolic int) (Message, error) {
	body, err := render(alertTmpl, struct {
		Name                string
		Systolic, Diastolic int
	}{name, systolic, diastolic})
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: "Alerta: pressão arterial elevada",
		HTML:    body,
	}, nil
}

func (c *Composer) PasswordReset(to, token string) (Message, error) {
	body, err := render(resetTmpl, struct {
		Link   string
		Expiry string
	}{c.link("/reset", url.Values{"token": {token}}), expiry(c.resetTTL)})
	if err != nil {
		return Message{}, err
	}

	return Message{
		To:      to,
		Subject: "Redefinição de Senha Solicitada",
		HTML:    body,
	}, nil
}
