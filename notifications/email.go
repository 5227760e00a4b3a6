package notifications

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/satswap/swapd/config"
)

const (
	charset = "UTF-8"
)

func sendEmail(to, cc []*string, from, content, subject string) error {
	sess, err := session.NewSession(&aws.Config{})
	if err != nil {
		log.Printf("Error in session.NewSession: %v", err)
		return err
	}
	svc := ses.New(sess)

	input := &ses.SendEmailInput{
		Destination: &ses.Destination{
			CcAddresses: cc,
			ToAddresses: to,
		},
		Message: &ses.Message{
			Body: &ses.Body{
				Html: &ses.Content{
					Charset: aws.String(charset),
					Data:    aws.String(content),
				},
			},
			Subject: &ses.Content{
				Charset: aws.String(charset),
				Data:    aws.String(subject),
			},
		},
		Source: aws.String(from),
	}
	result, err := svc.SendEmail(input)
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case ses.ErrCodeMessageRejected:
				log.Println(ses.ErrCodeMessageRejected, aerr.Error())
			case ses.ErrCodeMailFromDomainNotVerifiedException:
				log.Println(ses.ErrCodeMailFromDomainNotVerifiedException, aerr.Error())
			case ses.ErrCodeConfigurationSetDoesNotExistException:
				log.Println(ses.ErrCodeConfigurationSetDoesNotExistException, aerr.Error())
			default:
				log.Println(aerr.Error())
			}
		} else {
			log.Println(err.Error())
		}
		return err
	}

	log.Printf("Email sent with result:\n%v", result)

	return nil
}

// SendPayoutReport mails an ops report for one flushed payout group.
func SendPayoutReport(
	emailConfig *config.Email,
	payoutReference string,
	amountSat int64,
	dealCount int64,
) error {
	var html bytes.Buffer

	tpl := `
	<table>
	<tr><td>Payout Reference:</td><td>{{ .PayoutReference }}</td></tr>
	<tr><td>Amount per deal (sat):</td><td>{{ .AmountSat }}</td></tr>
	<tr><td>Deals paid out:</td><td>{{ .DealCount }}</td></tr>
	</table>
	`
	t, err := template.New("PayoutReportEmail").Parse(tpl)
	if err != nil {
		return err
	}

	if err := t.Execute(&html, map[string]string{
		"PayoutReference": payoutReference,
		"AmountSat":       strconv.FormatInt(amountSat, 10),
		"DealCount":       strconv.FormatInt(dealCount, 10),
	}); err != nil {
		return err
	}

	err = sendEmail(
		emailConfig.To,
		emailConfig.Cc,
		emailConfig.From,
		html.String(),
		fmt.Sprintf("Batch Payout - %s", payoutReference),
	)
	if err != nil {
		log.Printf("Error sending payout report email: %v", err)
		return err
	}

	return nil
}
