package enums

// FeedState is the change-feed subscriber's lifecycle position.
type FeedState string

const (
	FeedStateUnsubscribed FeedState = "unsubscribed"
	FeedStateSubscribing  FeedState = "subscribing"
	FeedStateActive       FeedState = "active"
)

// String implements fmt.Stringer.
func (f FeedState) String() string {
	return string(f)
}
