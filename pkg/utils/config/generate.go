package config

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// GenerateConfig writes opt as a commented YAML document usable as config.yaml.
func GenerateConfig(w io.Writer, opt interface{}) error {
	root := getYamlNode(opt)
	o, err := yaml.Marshal(root)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(o))
	return err
}

func getYamlNode(v interface{}) *yaml.Node {
	node := &yaml.Node{}
	vv := reflect.ValueOf(v)
	switch vv.Kind() {
	case reflect.Ptr:
		if vv.IsNil() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
		node = getYamlNode(vv.Elem().Interface())
	case reflect.Map:
		node.Kind = yaml.MappingNode
		for _, k := range vv.MapKeys() {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: fmt.Sprintf("%v", k.Interface())},
				getYamlNode(vv.MapIndex(k).Interface()),
			)
		}
	case reflect.Array, reflect.Slice:
		node.Kind = yaml.SequenceNode
		for idx := 0; idx < vv.Len(); idx++ {
			node.Content = append(node.Content, getYamlNode(vv.Index(idx).Interface()))
		}
	case reflect.Struct:
		node.Kind = yaml.MappingNode
		t := vv.Type()
		for idx := 0; idx < t.NumField(); idx++ {
			field := t.Field(idx)
			if !field.IsExported() {
				continue
			}
			fieldname, flags, _ := strings.Cut(field.Tag.Get("yaml"), ",")
			if fieldname == "-" {
				continue
			}
			if field.Anonymous && flags == "inline" {
				inlined := getYamlNode(vv.Field(idx).Interface())
				if inlined.Kind == yaml.MappingNode {
					node.Content = append(node.Content, inlined.Content...)
				}
				continue
			}
			if fieldname == "" {
				fieldname = strings.ToLower(field.Name)
			}
			node.Content = append(node.Content,
				&yaml.Node{
					Kind:        yaml.ScalarNode,
					Value:       fieldname,
					HeadComment: field.Tag.Get("head_comment"),
					LineComment: field.Tag.Get("line_comment"),
				},
				getYamlNode(vv.Field(idx).Interface()),
			)
		}
	default:
		node.Kind = yaml.ScalarNode
		node.Value = fmt.Sprintf("%v", vv.Interface())
	}
	return node
}
