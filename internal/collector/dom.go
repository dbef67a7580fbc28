package collector

import (
	"encoding/json"
	"strings"

	"golang.org/x/net/html"
)

type domNode struct {
	Name       string            `json:"name"`
	Variant    string            `json:"variant"`
	ID         string            `json:"id,omitempty"`
	Classes    []string          `json:"classes,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Children   []any             `json:"children,omitempty"`
}

type domTree struct {
	TreeType string `json:"treeType"`
	Children []any  `json:"children,omitempty"`
}

// void 元素没有闭合标签
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "source": true,
	"track": true, "wbr": true,
}

// RenderDOM 把 HTML 解析成带缩进的 JSON DOM 树，提取脚本可以用 jq 之类的工具按结构取值。
// 文本节点输出为字符串，空白文本和注释会被丢弃。
func RenderDOM(page string) (string, error) {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", err
	}

	tree := domTree{TreeType: "documentFragment"}
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if v := convertNode(c); v != nil {
			tree.Children = append(tree.Children, v)
		}
	}

	bs, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bs), nil
}

func convertNode(n *html.Node) any {
	switch n.Type {
	case html.TextNode:
		t := strings.TrimSpace(n.Data)
		if t == "" {
			return nil
		}
		return t
	case html.ElementNode:
		node := &domNode{Name: n.Data, Variant: "normal"}
		if voidElements[n.Data] {
			node.Variant = "void"
		}
		for _, a := range n.Attr {
			switch a.Key {
			case "id":
				node.ID = a.Val
			case "class":
				node.Classes = strings.Fields(a.Val)
			default:
				if node.Attributes == nil {
					node.Attributes = make(map[string]string)
				}
				node.Attributes[a.Key] = a.Val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if v := convertNode(c); v != nil {
				node.Children = append(node.Children, v)
			}
		}
		return node
	}
	return nil
}
