package match_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestMatchSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "match suite")
}
